package summary

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/static-site-search/internal/index"
)

func body(text string) index.Description { return index.Description{Kind: "text", Text: text} }

const long = "one two three four five six seven eight nine ten eleven"

func TestMetaIsVerbatim(t *testing.T) {
	in := "  Short\tmeta | description\n"
	if got := Summarize(index.Description{Kind: "meta", Text: in}); got != in {
		t.Errorf("got %q, want %q", got, in)
	}
}

func TestSkipsShortLeadingParts(t *testing.T) {
	text := "Home\tAbout\n\nA heading with few words\n" + long + "\nshort tail"
	got := Summarize(body(text))
	want := " " + long + " short tail"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExactlyTenWordsIsSkipped(t *testing.T) {
	ten := "one two three four five six seven eight nine ten"
	if got := Summarize(body(ten)); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := Summarize(body(ten + " eleven")); got != " "+ten+" eleven" {
		t.Errorf("got %q", got)
	}
}

func TestStopsOnceTargetReached(t *testing.T) {
	para := strings.Repeat("word ", 30)
	text := para + "\n" + para + "\n" + para
	got := Summarize(body(text))
	if want := " " + para; got != want {
		t.Errorf("got %d runes, want a single part of %d", utf8.RuneCountInString(got), utf8.RuneCountInString(want))
	}
}

func TestLengthCheckedBeforeAppending(t *testing.T) {
	first := long + strings.Repeat(" x", 40)
	second := strings.Repeat("y ", 200)
	got := Summarize(body(first + "\n" + second))
	if !strings.HasSuffix(got, second) {
		t.Error("a part appended below the target must be kept whole")
	}
}

func TestCodePointLength(t *testing.T) {
	word := "ééééé"
	part := long + strings.Repeat(" "+word, 13)
	if n := utf8.RuneCountInString(" " + part); n >= TargetLength {
		t.Fatalf("fixture too long: %d", n)
	}
	got := Summarize(body(part + "\nnext"))
	if !strings.HasSuffix(got, " next") {
		t.Errorf("summary under %d code points should take the next part: %q", TargetLength, got)
	}
}

func TestPipeIsNotASeparator(t *testing.T) {
	text := long + " | more words here"
	if got := Summarize(body(text)); got != " "+text {
		t.Errorf("got %q", got)
	}
}

func TestEmptyAndNullText(t *testing.T) {
	if got := Summarize(body("")); got != "" {
		t.Errorf("got %q", got)
	}
}
