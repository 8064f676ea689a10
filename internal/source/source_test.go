package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

var portugueseHeader = []string{
	"Nome/Razão Social", "Nome Fantasia", "CPF/CNPJ", "Data Nasc.", "Data Cadastro cliente",
	"Logradouro", "Número", "Complemento", "Bairro", "Cidade", "CEP", "Estado",
	"Plano", "Vencimento", "Isento", "Plano Valor", "Status", "Telefones", "Emails", "Celulares",
}

func TestCanonicalHeader(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"Nome/Razão Social", ColLegalName, true},
		{"  NOME/RAZAO SOCIAL ", ColLegalName, true},
		{"Número", ColNumber, true},
		{"numero", ColNumber, true},
		{"Data Nasc.", ColBirthDate, true},
		{"postal_code", ColPostalCode, true},
		{"Plan Description", ColPlanDescription, true},
		{"Observações", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := canonicalHeader(tc.in, nil)
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("canonicalHeader(%q)=(%q,%v) want (%q,%v)", tc.in, got, ok, tc.want, tc.wantOK)
		}
	}

	got, ok := canonicalHeader("Cliente", map[string]string{"Cliente": ColLegalName})
	if !ok || got != ColLegalName {
		t.Fatalf("extra header map not applied: %q,%v", got, ok)
	}
}

func TestReadCSV_SemicolonBOMAndRaggedRows(t *testing.T) {
	t.Parallel()

	in := "\uFEFFCPF/CNPJ;Plano;Estado;Extra\n" +
		"111.222.333-44;Basic;São Paulo;x\n" +
		"\n" +
		"55566677788; Pro \n"

	rs, err := ReadCSV(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("rows=%d want 2", len(rs.Rows))
	}

	r0 := rs.Rows[0]
	if rs.Get(r0, ColDocument) != "111.222.333-44" || rs.Get(r0, ColState) != "São Paulo" {
		t.Fatalf("row0=%v", r0.V)
	}
	r1 := rs.Rows[1]
	if rs.Get(r1, ColPlanDescription) != "Pro" {
		t.Fatalf("trim failed: %q", rs.Get(r1, ColPlanDescription))
	}
	if rs.Get(r1, ColState) != nil {
		t.Fatalf("missing trailing cell should be nil, got %v", rs.Get(r1, ColState))
	}
	if rs.Get(r1, ColPhone) != nil {
		t.Fatalf("absent column should be nil")
	}
	if r0.Line != 2 || r1.Line != 4 {
		t.Fatalf("lines=%d,%d want 2,4", r0.Line, r1.Line)
	}
	if len(rs.Unmapped) != 1 || rs.Unmapped[0] != "Extra" {
		t.Fatalf("unmapped=%v", rs.Unmapped)
	}
}

func TestReadCSV_UnknownHeaderIsError(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(strings.NewReader("foo,bar\n1,2\n"), Options{})
	if err == nil {
		t.Fatalf("expected error for a header with no known columns")
	}
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	defer f.Close()

	header := make([]any, len(portugueseHeader))
	for i, h := range portugueseHeader {
		header[i] = h
	}
	if err := f.SetSheetRow("Sheet1", "A1", &header); err != nil {
		t.Fatalf("SetSheetRow header: %v", err)
	}
	row := []any{"ACME", "Acme", "111.222.333-44", nil, nil, "Rua A", 10, nil, "Centro", "SP", "12345678", "São Paulo",
		"Basic", 10, "Sim", 50, "Ativo", "999999999", "a@b.c", nil}
	if err := f.SetSheetRow("Sheet1", "A2", &row); err != nil {
		t.Fatalf("SetSheetRow data: %v", err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	rs, err := ReadXLSX(buf, Options{})
	if err != nil {
		t.Fatalf("ReadXLSX: %v", err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("rows=%d want 1", len(rs.Rows))
	}
	r := rs.Rows[0]
	checks := map[string]any{
		ColLegalName:       "ACME",
		ColDocument:        "111.222.333-44",
		ColNumber:          "10",
		ColPlanValue:       "50",
		ColPhone:           "999999999",
		ColComplement:      nil,
		ColPlanDescription: "Basic",
	}
	for col, want := range checks {
		if got := rs.Get(r, col); got != want {
			t.Fatalf("%s=%#v want %#v", col, got, want)
		}
	}
}

func TestReadHTML_XLSExport(t *testing.T) {
	t.Parallel()

	in := `<html><body>
<table>
  <tr><th>CPF/CNPJ</th><th>Plano</th><th>Telefones</th></tr>
  <tr><td> 111.222.333-44 </td><td>Basic</td><td>999999999</td></tr>
  <tr><td>12345678000199</td><td>Pro
  Max</td><td></td></tr>
</table></body></html>`

	rs, err := ReadHTML(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("ReadHTML: %v", err)
	}
	if len(rs.Rows) != 2 {
		t.Fatalf("rows=%d want 2", len(rs.Rows))
	}
	if got := rs.Get(rs.Rows[0], ColDocument); got != "111.222.333-44" {
		t.Fatalf("document=%v", got)
	}
	if got := rs.Get(rs.Rows[1], ColPlanDescription); got != "Pro Max" {
		t.Fatalf("plan=%q want whitespace collapsed", got)
	}
	if got := rs.Get(rs.Rows[1], ColPhone); got != nil {
		t.Fatalf("empty cell should be nil, got %v", got)
	}
}

func TestOpen_DetectsFormatAndWrapsErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	// HTML disguised as .xls.
	xls := filepath.Join(dir, "clientes.xls")
	if err := os.WriteFile(xls, []byte("<table><tr><td>CPF/CNPJ</td></tr><tr><td>1</td></tr></table>"), 0o644); err != nil {
		t.Fatal(err)
	}
	rs, err := Open(context.Background(), xls, Options{})
	if err != nil {
		t.Fatalf("Open(xls html): %v", err)
	}
	if len(rs.Rows) != 1 {
		t.Fatalf("rows=%d want 1", len(rs.Rows))
	}

	_, err = Open(context.Background(), filepath.Join(dir, "missing.csv"), Options{})
	if !errors.Is(err, ErrSourceRead) {
		t.Fatalf("missing file err=%v want ErrSourceRead", err)
	}

	bin := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(bin, []byte{0xd0, 0xcf, 0x11, 0xe0}, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err = Open(context.Background(), bin, Options{})
	if !errors.Is(err, ErrSourceRead) {
		t.Fatalf("unknown format err=%v want ErrSourceRead", err)
	}
}

func TestParseS3URI(t *testing.T) {
	t.Parallel()

	b, k, err := parseS3URI("s3://imports/2024/clientes.xlsx")
	if err != nil || b != "imports" || k != "2024/clientes.xlsx" {
		t.Fatalf("parseS3URI=(%q,%q,%v)", b, k, err)
	}
	for _, bad := range []string{"s3://", "s3://bucket", "s3:///key", "/local/file.csv"} {
		if _, _, err := parseS3URI(bad); err == nil {
			t.Fatalf("parseS3URI(%q) should fail", bad)
		}
	}
}

func TestOpen_S3(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "SECRET")
	t.Setenv("AWS_EC2_METADATA_DISABLED", "true")

	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte("CPF/CNPJ,Plano\n11122233344,Basic\n"))
	}))
	defer srv.Close()

	rs, err := Open(context.Background(), "s3://imports/clientes.csv", Options{
		S3: S3Options{Endpoint: srv.URL, PathStyle: true, HTTPClient: srv.Client()},
	})
	if err != nil {
		t.Fatalf("Open(s3): %v", err)
	}
	if gotPath != "/imports/clientes.csv" {
		t.Fatalf("request path=%q", gotPath)
	}
	if len(rs.Rows) != 1 || rs.Get(rs.Rows[0], ColPlanDescription) != "Basic" {
		t.Fatalf("rows=%v", rs.Rows)
	}
}
