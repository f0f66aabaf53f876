package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefixesDoc = `# Part Prefixes

Approved part-type prefixes.

## SCREW

**Description:** Socket head cap screws

**Format:** ` + "`SCREW-{MATERIAL}-{THREAD}-{LENGTH}`" + `

## NUT

**Description:** Hex nuts, *metric*

**Format:** ` + "`NUT-{MATERIAL}-{THREAD}`" + `

### Notes

Free text inside a section is ignored.
`

func TestDecode_Prefixes(t *testing.T) {
	entries, err := decode(KindPrefix, "prefixes.md", []byte(prefixesDoc))
	require.NoError(t, err)

	assert.Equal(t, []Entry{
		PrefixEntry{Code: "SCREW", Description: "Socket head cap screws", FormatTemplate: "SCREW-{MATERIAL}-{THREAD}-{LENGTH}"},
		PrefixEntry{Code: "NUT", Description: "Hex nuts, *metric*", FormatTemplate: "NUT-{MATERIAL}-{THREAD}"},
	}, entries)
}

func TestDecode_Materials(t *testing.T) {
	doc := "# Materials\n\n## SS118\n\n**Description:** 18-8 stainless steel\n\n## BR\n\n**Description:** Brass\n"

	entries, err := decode(KindMaterial, "materials.md", []byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		MaterialEntry{Code: "SS118", Description: "18-8 stainless steel"},
		MaterialEntry{Code: "BR", Description: "Brass"},
	}, entries)
}

func TestDecode_HandEditedLayouts(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		doc  string
		want []Entry
	}{
		{
			name: "compact prefix sections",
			kind: KindPrefix,
			doc: "# Part Prefixes\n## SCREW\n**Description:** Socket head cap screws\n**Format:** `SCREW-{MATERIAL}-{THREAD}-{LENGTH}`\n" +
				"## NUT\n**Description:** Hex nuts\n**Format:** `NUT-{MATERIAL}-{THREAD}`\n",
			want: []Entry{
				PrefixEntry{Code: "SCREW", Description: "Socket head cap screws", FormatTemplate: "SCREW-{MATERIAL}-{THREAD}-{LENGTH}"},
				PrefixEntry{Code: "NUT", Description: "Hex nuts", FormatTemplate: "NUT-{MATERIAL}-{THREAD}"},
			},
		},
		{
			name: "description followed by a rule",
			kind: KindMaterial,
			doc:  "# Materials\n\n## SS118\n**Description:** 18-8 stainless steel\n---\n## BR ##\n**Description:** Brass\n---\n",
			want: []Entry{
				MaterialEntry{Code: "SS118", Description: "18-8 stainless steel"},
				MaterialEntry{Code: "BR", Description: "Brass"},
			},
		},
		{
			name: "format before description with crlf",
			kind: KindPrefix,
			doc:  "## WASH\r\n**Format:** `WASH-{SIZE}`\r\n\r\n**Description:** Flat washers\r\n",
			want: []Entry{
				PrefixEntry{Code: "WASH", Description: "Flat washers", FormatTemplate: "WASH-{SIZE}"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decode(tt.kind, "reg.md", []byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_CompactCorruptLine(t *testing.T) {
	doc := "# Materials\n## BR\n**Description:** Brass\n## AL\nAluminium\n"
	_, err := decode(KindMaterial, "materials.md", []byte(doc))

	var ce *CorruptError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 4, ce.Line)
	assert.Equal(t, "AL", ce.Section)
	assert.Equal(t, "missing description", ce.Reason)
}

func TestDecode_Empty(t *testing.T) {
	entries, err := decode(KindMaterial, "materials.md", nil)
	require.NoError(t, err)
	assert.Empty(t, entries)

	entries, err = decode(KindPrefix, "prefixes.md", []byte("# Part Prefixes\n\n"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDecode_Corrupt(t *testing.T) {
	tests := []struct {
		name string
		kind Kind
		doc  string
		line int
	}{
		{
			name: "missing description",
			kind: KindMaterial,
			doc:  "# Materials\n\n## BR\n\nBrass without a label\n",
			line: 3,
		},
		{
			name: "prefix without format",
			kind: KindPrefix,
			doc:  "# Part Prefixes\n\n## SCREW\n\n**Description:** Screws\n",
			line: 3,
		},
		{
			name: "format without code span",
			kind: KindPrefix,
			doc:  "## SCREW\n\n**Description:** Screws\n\n**Format:** SCREW-{MATERIAL}\n",
			line: 1,
		},
		{
			name: "duplicate code",
			kind: KindMaterial,
			doc:  "## BR\n\n**Description:** Brass\n\n## BR\n\n**Description:** Brass again\n",
			line: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decode(tt.kind, "reg.md", []byte(tt.doc))
			require.ErrorIs(t, err, ErrCorruptRegistry)

			var ce *CorruptError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.line, ce.Line)
			assert.Equal(t, "reg.md", ce.Path)
		})
	}
}

func TestEncodeSection_RoundTrip(t *testing.T) {
	var doc []byte
	want := []Entry{
		PrefixEntry{Code: "SCREW", Description: "Socket head cap screws", FormatTemplate: "SCREW-{MATERIAL}-{THREAD}-{LENGTH}"},
		PrefixEntry{Code: "WASH", Description: "Flat washers (DIN 125)", FormatTemplate: "WASH-{MATERIAL}-{SIZE}"},
	}
	for _, e := range want {
		sec, err := encodeSection(e)
		require.NoError(t, err)
		doc = appendSection(KindPrefix, doc, sec)
	}

	assert.Contains(t, string(doc), "# Part Prefixes\n\n## SCREW\n\n")
	got, err := decode(KindPrefix, "prefixes.md", doc)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestAppendSection_PreservesExistingContent(t *testing.T) {
	doc := []byte("# Materials\n\nKeep this note.")
	sec, err := encodeSection(MaterialEntry{Code: "BR", Description: "Brass"})
	require.NoError(t, err)

	out := appendSection(KindMaterial, doc, sec)
	assert.Equal(t, "# Materials\n\nKeep this note.\n\n## BR\n\n**Description:** Brass\n\n", string(out))
}

func TestEncodeSection_Invalid(t *testing.T) {
	for _, e := range []Entry{
		MaterialEntry{Code: "", Description: "Brass"},
		MaterialEntry{Code: "BR", Description: "two\nlines"},
		PrefixEntry{Code: "X", Description: "x", FormatTemplate: "X-`{A}`"},
	} {
		_, err := encodeSection(e)
		assert.ErrorIs(t, err, ErrInvalidEntry, "%#v", e)
	}
}
