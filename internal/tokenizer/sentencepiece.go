package tokenizer

import (
	"fmt"

	esentencepiece "github.com/eliben/go-sentencepiece"
)

// SentencePiece wraps a tokenizer.model protobuf.
type SentencePiece struct {
	proc *esentencepiece.Processor
	info *esentencepiece.ModelInfo
}

func LoadSentencePiece(path string) (*SentencePiece, error) {
	proc, err := esentencepiece.NewProcessorFromPath(path)
	if err != nil {
		return nil, fmt.Errorf("load sentencepiece model: %w", err)
	}
	return &SentencePiece{proc: proc, info: proc.ModelInfo()}, nil
}

func (s *SentencePiece) Encode(text string) ([]int, error) {
	tokens := s.proc.Encode(text)
	ids := make([]int, len(tokens))
	for i, t := range tokens {
		ids[i] = t.ID
	}
	return ids, nil
}

func (s *SentencePiece) Decode(ids []int) (string, error) {
	for _, id := range ids {
		if id < 0 || id >= s.info.VocabularySize {
			return "", fmt.Errorf("token id out of range: %d", id)
		}
	}
	return s.proc.Decode(ids), nil
}

func (s *SentencePiece) VocabSize() int { return s.info.VocabularySize }
func (s *SentencePiece) BOSID() int     { return s.info.BeginningOfSentenceID }
func (s *SentencePiece) EOSID() int     { return s.info.EndOfSentenceID }
func (s *SentencePiece) AddBOS() bool   { return s.info.BeginningOfSentenceID >= 0 }
