package store

import (
	"fmt"

	"github.com/roach88/exprmatch/internal/ir"
)

// marshalDocument encodes a document as zstd-compressed Extended JSON.
func (s *Store) marshalDocument(doc ir.Document) ([]byte, error) {
	data, err := ir.MarshalJSON(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	return s.encoder.EncodeAll(data, nil), nil
}

// marshalStages encodes a stage list as zstd-compressed Extended JSON.
func (s *Store) marshalStages(stages []ir.Document) ([]byte, error) {
	data, err := ir.MarshalStages(stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stages: %w", err)
	}
	return s.encoder.EncodeAll(data, nil), nil
}

func (s *Store) unmarshalDocument(blob []byte) (ir.Document, error) {
	data, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress document: %w", err)
	}
	doc, err := ir.ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal document: %w", err)
	}
	return doc, nil
}

func (s *Store) unmarshalStages(blob []byte) ([]ir.Document, error) {
	data, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress stages: %w", err)
	}
	stages, err := ir.ParseDocuments(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	return stages, nil
}
