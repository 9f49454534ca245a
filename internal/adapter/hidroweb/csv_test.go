package hidroweb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/couchcryptid/rainfall-idf-service/internal/idf"
)

func preamble() string {
	lines := []string{
		"//  Sistema de Informações Hidrológicas",
		"//  Versão Web 3.0",
		"//  © Agência Nacional de Águas (ANA)",
		"//",
		"//  Os dados de chuva são expressos em mm",
		"//",
		"//  Data da geração do arquivo: 02/03/2024",
		"//",
		"//  Código da estação: 01943009",
		"//  Nome: São José",
		"//",
		"//  NivelConsistencia: 1 = Bruto, 2 = Consistido",
		"//",
	}
	return strings.Join(lines, "\n") + "\n"
}

func latin1(t *testing.T, s string) []byte {
	t.Helper()
	out, err := charmap.ISO8859_1.NewEncoder().String(s)
	require.NoError(t, err)
	return []byte(out)
}

func TestRead_HidrowebExport(t *testing.T) {
	body := preamble() +
		"EstacaoCodigo;NivelConsistencia;Data;Hora;Maxima;\n" +
		"01943009;2;01/01/2000;07:30:00;45,2;\n" +
		"01943009;2;01/02/2000;07:30:00;;\n" +
		"\n" +
		"01943009;2;01/03/2000;07:30:00;12,0\n"

	f, err := Read(strings.NewReader(string(latin1(t, body))))
	require.NoError(t, err)

	assert.Equal(t, ';', f.Delimiter)
	assert.Equal(t, PreambleLines, f.Skipped)
	assert.Equal(t, []string{"EstacaoCodigo", "NivelConsistencia", "Data", "Hora", "Maxima", "Coluna_5"}, f.Columns)
	require.Len(t, f.Rows, 3, "blank lines are dropped")
	assert.Equal(t, "45,2", f.Rows[0][4])
	assert.Equal(t, "", f.Rows[1][4])
	assert.Len(t, f.Rows[2], 6, "short rows are padded")

	recs, err := idf.ParseRecords(f.Table)
	require.NoError(t, err)
	assert.Equal(t, "01943009", recs.StationID)
	assert.Len(t, recs.Observations, 2)
	assert.Equal(t, 1, recs.Dropped)
}

func TestRead_DelimiterSniffing(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		delim rune
		skip  int
	}{
		{"comma without preamble", "Data,Maxima\n01/01/2000,45.2\n", ',', 0},
		{"tab with preamble", preamble() + "Data\tMaxima\n01/01/2000\t45,2\n", '\t', PreambleLines},
		{"semicolon with decimal comma", "Data;Maxima\n01/01/2000;45,2\n02/01/2000;3,1\n", ';', 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Read(strings.NewReader(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.delim, f.Delimiter)
			assert.Equal(t, tt.skip, f.Skipped)
			assert.Equal(t, []string{"Data", "Maxima"}, f.Columns)
		})
	}
}

func TestRead_UnrecognizedHeaderStillReads(t *testing.T) {
	f, err := Read(strings.NewReader("Dia;Chuva\n01/01/2000;1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Dia", "Chuva"}, f.Columns)

	_, err = idf.ParseRecords(f.Table)
	assert.ErrorIs(t, err, idf.ErrMissingColumns)
}

func TestRead_NoDelimiter(t *testing.T) {
	_, err := Read(strings.NewReader("apenas uma coluna\nvalor\n"))
	assert.ErrorIs(t, err, ErrNoDelimiter)

	_, err = Read(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrNoDelimiter)
}

func TestDecode(t *testing.T) {
	got, err := decode(latin1(t, "Estação"))
	require.NoError(t, err)
	assert.Equal(t, "Estação", got)

	got, err = decode([]byte("\xef\xbb\xbfEstação"))
	require.NoError(t, err)
	assert.Equal(t, "Estação", got, "UTF-8 with BOM is kept")
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chuvas.csv")
	require.NoError(t, os.WriteFile(path, latin1(t, preamble()+"Data;Maxima\n01/01/2000;45,2\n"), 0o600))

	f, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, f.Rows, 1)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
