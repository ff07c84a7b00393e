package domain

// Batch holds the records written into the current transaction that are not
// yet committed. It is what the pipeline replays after a failed transaction
// and what it acknowledges after a commit.
type Batch struct {
	// Records contains the records in write order
	Records []Record

	// TotalBytes is the sum of all payload lengths
	TotalBytes int
}

// NewBatch creates a new empty batch.
func NewBatch() *Batch {
	return &Batch{
		Records: make([]Record, 0),
	}
}

// Add appends a record to the batch.
func (b *Batch) Add(rec Record) {
	b.Records = append(b.Records, rec)
	b.TotalBytes += rec.Size()
}

// Size returns the number of records in the batch.
func (b *Batch) Size() int {
	return len(b.Records)
}

// Empty returns true if the batch has no records.
func (b *Batch) Empty() bool {
	return len(b.Records) == 0
}

// Reset clears the batch for reuse.
func (b *Batch) Reset() {
	b.Records = b.Records[:0]
	b.TotalBytes = 0
}

// LastRecord returns the last record in the batch, or nil if empty.
func (b *Batch) LastRecord() *Record {
	if len(b.Records) == 0 {
		return nil
	}
	return &b.Records[len(b.Records)-1]
}
