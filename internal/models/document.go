package models

import (
	"slices"
	"time"
)

// BookRecord is the record stored in the books collection for one export file.
// CreatedAt and UpdatedAt are left zero so Firestore fills them in at write time.
type BookRecord struct {
	Title      string    `firestore:"title"`
	Authors    []string  `firestore:"authors"`
	Preview    string    `firestore:"preview"`
	Quotes     []string  `firestore:"quotes"`
	UploadedBy string    `firestore:"uploadedBy,omitempty"`
	SourceFile string    `firestore:"sourceFile,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt  time.Time `firestore:"updatedAt,serverTimestamp"`
}

// QuoteRecord is a single highlight, stored in the quotes collection.
type QuoteRecord struct {
	Title      string    `firestore:"title"`
	Authors    []string  `firestore:"authors"`
	Quote      string    `firestore:"quote"`
	UploadedBy string    `firestore:"uploadedBy,omitempty"`
	SourceFile string    `firestore:"sourceFile,omitempty"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp"`
	UpdatedAt  time.Time `firestore:"updatedAt,serverTimestamp"`
}

// Author returns the first listed author, or "" if there is none.
func (b *BookRecord) Author() string {
	if len(b.Authors) == 0 {
		return ""
	}
	return b.Authors[0]
}

// QuoteRecords derives one QuoteRecord per quote, in file order. Each record
// gets its own copy of the authors so later changes to b are not shared.
func (b *BookRecord) QuoteRecords() []QuoteRecord {
	records := make([]QuoteRecord, 0, len(b.Quotes))
	for _, quote := range b.Quotes {
		records = append(records, QuoteRecord{
			Title:      b.Title,
			Authors:    slices.Clone(b.Authors),
			Quote:      quote,
			UploadedBy: b.UploadedBy,
			SourceFile: b.SourceFile,
		})
	}
	return records
}
