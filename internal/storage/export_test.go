package storage

// SetAfterInsert installs fn between the transaction insert and the balance
// update of CreateTransaction. nil removes it.
func (s *Store) SetAfterInsert(fn func() error) {
	s.afterInsert = fn
}
