package export

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"carteira/internal/core"
)

func sampleTxs() []core.Transaction {
	return []core.Transaction{
		{ID: "2", Amount: core.MustParseMoney("3500"), Description: "Salário", Category: "Salário", Type: core.Income, Date: time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)},
		{ID: "1", Amount: core.MustParseMoney("12.5"), Description: "Café, pão", Category: "Alimentação", Type: core.Expense, Date: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleTxs(), time.UTC); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	want := "Date,Description,Category,Amount,Type\n" +
		"05/03/2025,Salário,Salário,3500.00,income\n" +
		"01/03/2025,\"Café, pão\",Alimentação,12.50,expense\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteCSV() =\n%s\nwant\n%s", got, want)
	}
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, nil, time.UTC); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "Date,Description,Category,Amount,Type" {
		t.Errorf("unexpected output %q", got)
	}
}

func TestFileName(t *testing.T) {
	if got := FileName(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)); got != "Relatorio_3.csv" {
		t.Errorf("FileName() = %q", got)
	}
}

type memObject struct {
	bytes.Buffer
	closed bool
}

func (m *memObject) Close() error { m.closed = true; return nil }

func TestGCSUploader(t *testing.T) {
	objects := map[string]*memObject{}
	u := NewGCSUploaderWith("exports", func(ctx context.Context, name string) io.WriteCloser {
		o := &memObject{}
		objects[name] = o
		return o
	}, nil)

	now := time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)
	uri, err := u.Upload(context.Background(), "u1", sampleTxs(), now)
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	name := "u1/2025-03-10T143000_Relatorio_3.csv"
	if uri != "gs://exports/"+name {
		t.Errorf("uri = %q", uri)
	}
	o, ok := objects[name]
	if !ok || !o.closed || !strings.HasPrefix(o.String(), "Date,") {
		t.Fatalf("object not written: %v", objects)
	}

	if _, err := u.Upload(context.Background(), "u1", nil, now); !errors.Is(err, ErrNoTransactions) {
		t.Errorf("empty upload error = %v", err)
	}
}
