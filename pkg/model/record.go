// pkg/model/record.go
package model

import "time"

// RawRecord is a fixed-width payload read from the source partition
type RawRecord struct {
	Payload string
}

// RecordFields holds the decomposed fixed-width fields of a valid payload
type RecordFields struct {
	Corp         string `bson:"corp" json:"corp"`
	CPF          string `bson:"cpf" json:"cpf"`
	CardNumber   string `bson:"card_number" json:"cardNumber"`
	Brand        string `bson:"brand" json:"brand"`
	ProductDesc  string `bson:"product_desc" json:"productDesc"`
	ProductLimit string `bson:"product_limit" json:"productLimit"`
	GlobalLimit  string `bson:"global_limit" json:"globalLimit"`
	Account      string `bson:"account" json:"account"`
}

// WorkingDocument is one entry of the date-stamped working partition.
// Fields is set only when Validity is true; Original always carries the payload.
type WorkingDocument struct {
	Validity   bool          `bson:"validity" json:"validity"`
	Fields     *RecordFields `bson:"data,omitempty" json:"data,omitempty"`
	Original   string        `bson:"original" json:"original"`
	InsertedAt time.Time     `bson:"insertedAt" json:"insertedAt"`
}

// ClassifiedRecord is either a ValidRecord or an InvalidRecord
type ClassifiedRecord interface {
	classified()
}

// ValidRecord is a decomposed record written to the valid partition
type ValidRecord struct {
	RecordFields `bson:",inline"`
	InsertedAt   time.Time `bson:"inserted_at" json:"insertedAt"`
}

// InvalidRecord keeps a payload that failed validation, unmodified
type InvalidRecord struct {
	Original string `bson:"original" json:"original"`
}

func (ValidRecord) classified()   {}
func (InvalidRecord) classified() {}
