// Package cache implements the two-tier loan-state cache: a remote Redis
// working set under split keys with a read-through path to the state loader.
package cache

import (
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/lendvoice/question-engine/pkg/models"
	"github.com/lendvoice/question-engine/pkg/rules"
)

// stateMeta is the msgpack shape of the :meta split key. LoadedAt transports
// as an ISO-8601 string.
type stateMeta struct {
	Version  int64  `msgpack:"version"`
	LoadedAt string `msgpack:"loaded_at"`
}

// encodeState serializes a LoanState into the three binary split values.
// The answered set travels separately as the store's native set.
func encodeState(s *models.LoanState) (fields, entities, meta []byte, err error) {
	fields, err = msgpack.Marshal(s.Fields)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode fields: %w", err)
	}
	entities, err = msgpack.Marshal(&s.Entities)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode entities: %w", err)
	}
	meta, err = msgpack.Marshal(stateMeta{
		Version:  s.Version,
		LoadedAt: s.LoadedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encode meta: %w", err)
	}
	return fields, entities, meta, nil
}

// decodeState rebuilds a LoanState from the stored split values.
func decodeState(proposalPid string, fields, entities, meta []byte, answered []string) (*models.LoanState, error) {
	s := &models.LoanState{
		ProposalPid: proposalPid,
		Fields:      make(map[string]models.Value),
		Answered:    models.AnsweredSet(answered),
	}

	if err := msgpack.Unmarshal(fields, &s.Fields); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	// Entries written before field names were canonical may still carry the
	// old spellings; fold them so a field has exactly one key.
	s.Fields = rules.NormalizeContext(s.Fields)
	if err := msgpack.Unmarshal(entities, &s.Entities); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}

	var m stateMeta
	if err := msgpack.Unmarshal(meta, &m); err != nil {
		return nil, fmt.Errorf("decode meta: %w", err)
	}
	s.Version = m.Version
	loadedAt, err := time.Parse(time.RFC3339Nano, m.LoadedAt)
	if err != nil {
		return nil, fmt.Errorf("decode loaded_at: %w", err)
	}
	s.LoadedAt = loadedAt

	return s, nil
}
