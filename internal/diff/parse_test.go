package diff

import (
	"testing"
)

const sampleDiffHTML = `
<table class="diff">
<tr>
  <td class="diff-marker"></td>
  <td class="diff-context"><div>Early life and career</div></td>
  <td class="diff-marker"></td>
  <td class="diff-context"><div>Early life and career</div></td>
</tr>
<tr>
  <td class="diff-marker">−</td>
  <td class="diff-deletedline"><div>born in <del class="diffchange">1950</del></div></td>
  <td class="diff-marker">+</td>
  <td class="diff-addedline"><div>born in <ins class="diffchange">1952</ins></div></td>
</tr>
<tr>
  <td class="diff-marker"></td>
  <td class="diff-context"><div>Later career</div></td>
  <td class="diff-marker"></td>
  <td class="diff-context"><div>Later career</div></td>
</tr>
<tr>
  <td class="diff-marker">+</td>
  <td class="diff-addedline"><div>joined the <ins>city council</ins> in 1980</div></td>
</tr>
</table>`

func TestParseRowsInOrder(t *testing.T) {
	t.Parallel()

	fragments := Parse(sampleDiffHTML)
	if len(fragments) != 2 {
		t.Fatalf("fragment count = %d, want 2", len(fragments))
	}

	first := fragments[0]
	if first.AddedText != "born in 1952" {
		t.Fatalf("added text = %q", first.AddedText)
	}
	if first.RemovedText != "born in 1950" {
		t.Fatalf("removed text = %q", first.RemovedText)
	}
	if first.Context != "Early life and career" {
		t.Fatalf("context = %q", first.Context)
	}

	second := fragments[1]
	if second.AddedText != "joined the city council in 1980" {
		t.Fatalf("inline markup not flattened: %q", second.AddedText)
	}
	if second.RemovedText != "" {
		t.Fatalf("unexpected removed text: %q", second.RemovedText)
	}
	if second.Context != "Later career" {
		t.Fatalf("running context not updated: %q", second.Context)
	}
}

func TestParseEmptyAndMalformedHTML(t *testing.T) {
	t.Parallel()

	if got := Parse(""); got != nil {
		t.Fatalf("empty input produced fragments: %v", got)
	}
	if got := Parse("   \n\t"); got != nil {
		t.Fatalf("blank input produced fragments: %v", got)
	}
	if got := Parse(`<table><tr><td class="diff-addedline">dangling`); len(got) != 1 {
		// The parser recovers from truncated markup by closing open tags.
		t.Fatalf("truncated markup fragments = %v", got)
	}
	if got := Parse("no table here"); got != nil {
		t.Fatalf("non-tabular input produced fragments: %v", got)
	}
}

func TestParseContextOnlyRowsYieldNothing(t *testing.T) {
	t.Parallel()

	onlyContext := `<table><tr><td class="diff-context">unchanged</td></tr></table>`
	if got := Parse(onlyContext); got != nil {
		t.Fatalf("context-only diff produced fragments: %v", got)
	}
}
