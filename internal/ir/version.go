package ir

// EngineVersion is the exprmatch rewriter version recorded with every stored rewrite.
const EngineVersion = "0.1.0"
