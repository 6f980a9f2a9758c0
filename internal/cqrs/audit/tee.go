package audit

import "context"

// Sink receives a copy of every persisted entry for out-of-process export.
// Enqueue must not block; losing an export copy is acceptable, losing the
// stored entry is not.
type Sink interface {
	Enqueue(entry Entry)
}

// TeeStore writes entries to the store of record and hands a copy to an
// export sink. The sink only sees entries that were durably appended.
type TeeStore struct {
	primary Store
	sink    Sink
}

func NewTeeStore(primary Store, sink Sink) *TeeStore {
	return &TeeStore{primary: primary, sink: sink}
}

func (s *TeeStore) Append(ctx context.Context, entry Entry) error {
	if err := s.primary.Append(ctx, entry); err != nil {
		return err
	}
	s.sink.Enqueue(entry)
	return nil
}
