package format

import (
	"context"
	"testing"

	"github.com/fshforge/fsh/internal/parser"
	"github.com/fshforge/fsh/internal/syntax"
	"github.com/fshforge/fsh/internal/testutil"
	"github.com/fshforge/fsh/internal/text"
)

func FuzzDocumentAndRange(f *testing.F) {
	addFormatSeeds(f)

	f.Fuzz(func(t *testing.T, src []byte) {
		t.Helper()
		if len(src) > 512*1024 {
			t.Skip()
		}

		tree := parser.Parse(src, syntax.ParseOptions{URI: "fuzz.fsh"})

		_, err := Document(context.Background(), tree, Options{})
		if err != nil && !IsErrUnsafeToFormat(err) {
			t.Fatalf("Document unexpected error: %v", err)
		}

		if len(src) == 0 {
			return
		}
		r := fuzzSpan(src)
		_, err = Range(context.Background(), tree, r, Options{})
		if err != nil && !IsErrUnsafeToFormat(err) {
			t.Fatalf("Range unexpected error: %v", err)
		}
	})
}

func addFormatSeeds(f *testing.F) {
	f.Helper()

	for _, s := range [][]byte{
		nil,
		[]byte(""),
		[]byte("Profile: MyPatient\nParent: Patient\nId: my-patient\nTitle: \"My Patient\"\n\n* name MS\n* birthDate 1..1\n"),
		[]byte("Extension: FavoriteColor\nId: favorite-color\n\n* value[x] only string\n"),
		[]byte("ValueSet: ColorVS\nId: color-vs\n\n* include codes from system ColorCS\n"),
		[]byte("CodeSystem: ColorCS\nId: color-cs\n\n* #red \"Red\"\n* #blue \"Blue\"\n"),
		[]byte("Profile: X\nTitle: \"unterminated\n"), // unsafe refusal expected
		[]byte("Profile: Y\n* \n"),                    // dangling rule prefix, unsafe refusal expected
		[]byte("Profile: Commented\nParent: Observation\n\n// leading comment\n* status MS // trailing\n"),
		{0xff, 0xfe, 0xfd}, // invalid UTF-8 -> unsafe refusal expected
	} {
		f.Add(s)
	}

	if cases, err := testutil.FormatGoldenCases(); err == nil {
		for _, c := range cases {
			f.Add(testutil.ReadFile(f, c.InputPath))
		}
	}
}

func fuzzSpan(src []byte) text.Span {
	if len(src) == 0 {
		return text.Span{}
	}
	start := 0
	end := len(src)
	if len(src) >= 1 {
		start = int(src[0]) % len(src)
	}
	if len(src) >= 2 {
		end = int(src[1]) % (len(src) + 1)
	}
	if end < start {
		start, end = end, start
	}
	return text.Span{Start: text.ByteOffset(start), End: text.ByteOffset(end)}
}
