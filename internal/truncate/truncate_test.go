package truncate

import (
	"strings"
	"testing"

	"github.com/GetAdriAI/idxr/internal/domain"
	"github.com/GetAdriAI/idxr/internal/tokenizer"
)

func repeatWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = "word"
	}
	return strings.Join(words, " ")
}

func TestFit_TextWithinBudgetIsUnchanged(t *testing.T) {
	tr := New(tokenizer.New())
	text := "a short sentence."
	res := tr.Fit(text, 1000, domain.StrategyEnd)
	if res.Truncated {
		t.Error("expected no truncation for text already within budget")
	}
	if res.Text != text {
		t.Errorf("expected text unchanged, got %q", res.Text)
	}
}

func TestFit_EndStrategyStaysWithinBudget(t *testing.T) {
	tok := tokenizer.New()
	tr := New(tok)
	text := repeatWords(500)
	res := tr.Fit(text, 20, domain.StrategyEnd)
	if !res.Truncated {
		t.Error("expected truncation")
	}
	if res.Tokens > 20 {
		t.Errorf("expected tokens <= 20, got %d", res.Tokens)
	}
	if !strings.HasPrefix(res.Text, "word") {
		t.Errorf("expected end strategy to keep a prefix, got %q", res.Text[:min(20, len(res.Text))])
	}
}

func TestFit_StartStrategyStaysWithinBudget(t *testing.T) {
	tok := tokenizer.New()
	tr := New(tok)
	text := repeatWords(500)
	res := tr.Fit(text, 20, domain.StrategyStart)
	if !res.Truncated {
		t.Error("expected truncation")
	}
	if res.Tokens > 20 {
		t.Errorf("expected tokens <= 20, got %d", res.Tokens)
	}
	if !strings.HasSuffix(res.Text, "word") {
		t.Errorf("expected start strategy to keep a suffix, got %q", res.Text[max(0, len(res.Text)-20):])
	}
}

func TestFit_MiddleOutStaysWithinBudget(t *testing.T) {
	tok := tokenizer.New()
	tr := New(tok)
	text := repeatWords(500)
	res := tr.Fit(text, 20, domain.StrategyMiddleOut)
	if !res.Truncated {
		t.Error("expected truncation")
	}
	if res.Tokens > 20 {
		t.Errorf("expected tokens <= 20, got %d", res.Tokens)
	}
}

func TestFit_SentencesStaysWithinBudgetAndFallsBackGracefully(t *testing.T) {
	tok := tokenizer.New()
	tr := New(tok)
	var sentences []string
	for i := 0; i < 40; i++ {
		sentences = append(sentences, "This is sentence number "+repeatWords(3)+".")
	}
	text := strings.Join(sentences, " ")
	res := tr.Fit(text, 25, domain.StrategySentences)
	if !res.Truncated {
		t.Error("expected truncation")
	}
	if res.Tokens > 25 {
		t.Errorf("expected tokens <= 25, got %d", res.Tokens)
	}
}

func TestFit_UnknownStrategyFallsBackToMiddleOut(t *testing.T) {
	tok := tokenizer.New()
	tr := New(tok)
	text := repeatWords(500)
	res := tr.Fit(text, 20, domain.TruncationStrategy("bogus"))
	if !res.Truncated {
		t.Error("expected truncation")
	}
	if res.Tokens > 20 {
		t.Errorf("expected tokens <= 20, got %d", res.Tokens)
	}
}
