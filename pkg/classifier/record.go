// pkg/classifier/record.go
package classifier

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/David-Botos/flat-ingress/pkg/model"
)

// RecordLength is the exact code-point length of a valid payload
const RecordLength = 122

// ErrInvalidLength is returned when decomposing a payload of the wrong length
var ErrInvalidLength = errors.New("payload length is not 122 code points")

// FieldSpec locates one fixed-width field by code-point offset
type FieldSpec struct {
	Name   string // bson field name
	Start  int
	Length int
}

// Layout is the fixed-width layout of a valid payload, in order
var Layout = []FieldSpec{
	{Name: "corp", Start: 0, Length: 2},
	{Name: "cpf", Start: 2, Length: 11},
	{Name: "card_number", Start: 13, Length: 16},
	{Name: "brand", Start: 29, Length: 1},
	{Name: "product_desc", Start: 30, Length: 50},
	{Name: "product_limit", Start: 80, Length: 1},
	{Name: "global_limit", Start: 81, Length: 1},
	{Name: "account", Start: 82, Length: 16},
}

// Validate reports whether payload has exactly RecordLength code points
func Validate(payload string) bool {
	return utf8.RuneCountInString(payload) == RecordLength
}

// DecomposeFields slices a valid payload into trimmed fields
func DecomposeFields(payload string) (model.RecordFields, error) {
	if !Validate(payload) {
		return model.RecordFields{}, fmt.Errorf("%w: got %d", ErrInvalidLength, utf8.RuneCountInString(payload))
	}

	runes := []rune(payload)
	values := make(map[string]string, len(Layout))
	for _, f := range Layout {
		values[f.Name] = strings.TrimSpace(string(runes[f.Start : f.Start+f.Length]))
	}

	return model.RecordFields{
		Corp:         values["corp"],
		CPF:          values["cpf"],
		CardNumber:   values["card_number"],
		Brand:        values["brand"],
		ProductDesc:  values["product_desc"],
		ProductLimit: values["product_limit"],
		GlobalLimit:  values["global_limit"],
		Account:      values["account"],
	}, nil
}

// Decompose builds a ValidRecord from a valid payload tagged with now
func Decompose(payload string, now time.Time) (model.ValidRecord, error) {
	fields, err := DecomposeFields(payload)
	if err != nil {
		return model.ValidRecord{}, err
	}
	return model.ValidRecord{RecordFields: fields, InsertedAt: now}, nil
}

// Project turns a raw payload into its working partition document
func Project(payload string, now time.Time) model.WorkingDocument {
	doc := model.WorkingDocument{
		Original:   payload,
		InsertedAt: now,
	}
	if fields, err := DecomposeFields(payload); err == nil {
		doc.Validity = true
		doc.Fields = &fields
	}
	return doc
}

// Classify splits a working document into the valid or invalid bucket.
// Documents flagged valid without decomposed fields are decomposed from the payload.
func Classify(doc model.WorkingDocument) model.ClassifiedRecord {
	if !doc.Validity {
		return model.InvalidRecord{Original: doc.Original}
	}
	if doc.Fields != nil {
		return model.ValidRecord{RecordFields: *doc.Fields, InsertedAt: doc.InsertedAt}
	}
	rec, err := Decompose(doc.Original, doc.InsertedAt)
	if err != nil {
		return model.InvalidRecord{Original: doc.Original}
	}
	return rec
}
