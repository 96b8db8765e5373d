// pkg/classifier/record_test.go
package classifier

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/flat-ingress/pkg/model"
)

// payload builds a fixed-width record from its fields, padding each one
func payload(corp, cpf, card, brand, desc, prodLimit, globalLimit, account string) string {
	pad := func(s string, n int) string {
		return fmt.Sprintf("%-*s", n, s)
	}
	p := pad(corp, 2) + pad(cpf, 11) + pad(card, 16) + pad(brand, 1) + pad(desc, 50) +
		pad(prodLimit, 1) + pad(globalLimit, 1) + pad(account, 16)
	// 24 trailing filler positions
	return p + strings.Repeat(" ", RecordLength-len([]rune(p)))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    bool
	}{
		{"exact length", strings.Repeat("x", 122), true},
		{"one short", strings.Repeat("x", 121), false},
		{"one long", strings.Repeat("x", 123), false},
		{"empty", "", false},
		// 122 code points but more than 122 bytes
		{"multibyte", strings.Repeat("ç", 122), true},
		{"multibyte short", strings.Repeat("ç", 61), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Validate(tt.payload))
		})
	}
}

func TestLayoutCoversDocumentedOffsets(t *testing.T) {
	end := 0
	for _, f := range Layout {
		assert.Equal(t, end, f.Start, f.Name)
		end = f.Start + f.Length
	}
	assert.Equal(t, 98, end)
	assert.LessOrEqual(t, end, RecordLength)
}

func TestDecompose(t *testing.T) {
	now := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	p := payload("01", "12345678901", "4111111111111111", "V", "GOLD CARD", "S", "N", "0000123456789012")
	require.Len(t, []rune(p), RecordLength)

	rec, err := Decompose(p, now)
	require.NoError(t, err)

	assert.Equal(t, "01", rec.Corp)
	assert.Equal(t, "12345678901", rec.CPF)
	assert.Equal(t, "4111111111111111", rec.CardNumber)
	assert.Equal(t, "V", rec.Brand)
	assert.Equal(t, "GOLD CARD", rec.ProductDesc)
	assert.Equal(t, "S", rec.ProductLimit)
	assert.Equal(t, "N", rec.GlobalLimit)
	assert.Equal(t, "0000123456789012", rec.Account)
	assert.Equal(t, now, rec.InsertedAt)
}

func TestDecomposeUsesCodePointOffsets(t *testing.T) {
	p := payload("01", "12345678901", "4111111111111111", "V", "CARTÃO DE CRÉDITO", "S", "N", "ACC")

	rec, err := Decompose(p, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "CARTÃO DE CRÉDITO", rec.ProductDesc)
	assert.Equal(t, "S", rec.ProductLimit)
	assert.Equal(t, "ACC", rec.Account)
}

func TestDecomposeRejectsWrongLength(t *testing.T) {
	_, err := Decompose(strings.Repeat("x", 50), time.Now())
	require.ErrorIs(t, err, ErrInvalidLength)
}

func TestProjectAndClassify(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	good := payload("01", "11111111111", "4111111111111111", "M", "PLATINUM", "S", "S", "1")
	bad := strings.Repeat("b", 50)

	goodDoc := Project(good, now)
	assert.True(t, goodDoc.Validity)
	require.NotNil(t, goodDoc.Fields)
	assert.Equal(t, "11111111111", goodDoc.Fields.CPF)
	assert.Equal(t, good, goodDoc.Original)

	badDoc := Project(bad, now)
	assert.False(t, badDoc.Validity)
	assert.Nil(t, badDoc.Fields)

	valid, ok := Classify(goodDoc).(model.ValidRecord)
	require.True(t, ok)
	assert.Equal(t, "PLATINUM", valid.ProductDesc)

	invalid, ok := Classify(badDoc).(model.InvalidRecord)
	require.True(t, ok)
	// the payload is stored as read, with nothing added
	assert.Equal(t, model.InvalidRecord{Original: bad}, invalid)
}

func TestClassifyValidWithoutFieldsDecomposesPayload(t *testing.T) {
	p := payload("02", "22222222222", "5500000000000004", "M", "BLACK", "N", "N", "9")
	doc := model.WorkingDocument{Validity: true, Original: p}

	rec, ok := Classify(doc).(model.ValidRecord)
	require.True(t, ok)
	assert.Equal(t, "02", rec.Corp)
}
