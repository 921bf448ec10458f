package repository

import "errors"

// ErrConcurrentModification is returned when a conditional status update
// inside an atomic unit affects a row count other than one, meaning a
// concurrent actor already mutated the row. The enclosing database
// transaction is rolled back; the item is naturally retried on the next
// poll since its status is unchanged.
var ErrConcurrentModification = errors.New("concurrent modification")
