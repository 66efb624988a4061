package service

import (
	"testing"

	"incident_portal_backend/internal/workers/repository"
)

var testWeights = MatchWeights{GivenNameBonus: 0.2, PhoneticBonus: 0.3}

func TestSimilarityProperties(t *testing.T) {
	if got := similarity("smith", "smith"); got != 1.0 {
		t.Fatalf("identical strings: got %v, want 1.0", got)
	}
	if got := similarity("smith", ""); got != 0 {
		t.Fatalf("empty right side: got %v, want 0", got)
	}
	if got := similarity("", "smith"); got != 0 {
		t.Fatalf("empty left side: got %v, want 0", got)
	}
	if similarity("john", "jon") != similarity("jon", "john") {
		t.Fatal("similarity must be symmetric")
	}
	if got := similarity("john", "jon"); got <= 0.5 || got >= 1.0 {
		t.Fatalf("near-miss should score between 0.5 and 1.0, got %v", got)
	}
}

func TestSplitSpokenName(t *testing.T) {
	given, family := splitSpokenName("Mary Anne Taylor")
	if given != "Mary" || family != "Anne Taylor" {
		t.Fatalf("got %q / %q", given, family)
	}

	given, family = splitSpokenName("Cher")
	if given != "Cher" || family != "" {
		t.Fatalf("single token: got %q / %q", given, family)
	}

	given, family = splitSpokenName("   ")
	if given != "" || family != "" {
		t.Fatalf("blank input: got %q / %q", given, family)
	}
}

func TestPhoneticCodeFoldsDigraphsAndVowels(t *testing.T) {
	// ph -> f, vowels stripped, capped at six characters.
	if got := phoneticCode("philip"); got != "flp" {
		t.Fatalf("philip: got %q", got)
	}
	if phoneticCode("nickson") != phoneticCode("nikson") {
		t.Fatal("ck and k should fold to the same code")
	}
	if phoneticCode("wright") != phoneticCode("right") {
		t.Fatal("wr and r should fold to the same code")
	}
	if phoneticCode("knight") != phoneticCode("night") {
		t.Fatal("kn and n should fold to the same code")
	}
	if got := phoneticCode("constantinopoulos"); len(got) != 6 {
		t.Fatalf("code should cap at 6 characters, got %q", got)
	}
}

func worker(id int64, first, last string) repository.Worker {
	return repository.Worker{ID: id, FirstName: first, LastName: last, IsActive: true}
}

func TestScoreWorkersExactMatchScoresOne(t *testing.T) {
	workers := []repository.Worker{worker(1, "John", "Smith")}

	got := scoreWorkers("  john   SMITH ", workers, testWeights)
	if len(got) != 1 {
		t.Fatalf("expected one candidate, got %d", len(got))
	}
	if got[0].score != 1.0 {
		t.Fatalf("exact match should score 1.0, got %v", got[0].score)
	}
}

func TestScoreWorkersDiscardsWeakCandidates(t *testing.T) {
	workers := []repository.Worker{
		worker(1, "John", "Smith"),
		worker(2, "Zachary", "Quillfeather"),
	}

	got := scoreWorkers("John Smith", workers, testWeights)
	for _, c := range got {
		if c.worker.ID == 2 {
			t.Fatalf("unrelated name should be discarded, scored %v", c.score)
		}
	}
}

func TestScoreWorkersSortsDescending(t *testing.T) {
	workers := []repository.Worker{
		worker(1, "Joan", "Smith"),
		worker(2, "John", "Smith"),
	}

	got := scoreWorkers("John Smith", workers, testWeights)
	if len(got) < 2 {
		t.Fatalf("expected both candidates, got %d", len(got))
	}
	if got[0].worker.ID != 2 {
		t.Fatalf("exact match should rank first, got worker %d", got[0].worker.ID)
	}
	if got[0].score < got[1].score {
		t.Fatal("candidates must be sorted by descending score")
	}
}

func TestScoreWorkersSkipsEmptyNames(t *testing.T) {
	workers := []repository.Worker{
		{ID: 1, FirstName: "  ", LastName: ""},
		worker(2, "John", "Smith"),
	}

	got := scoreWorkers("John Smith", workers, testWeights)
	if len(got) != 1 || got[0].worker.ID != 2 {
		t.Fatalf("blank-name worker should be skipped, got %+v", got)
	}
}

func TestGivenNameBonusLiftsScore(t *testing.T) {
	withBonus := scoreName("john smid", "john", "smid", worker(1, "John", "Smith"), testWeights)
	without := scoreName("jon smid", "jon", "smid", worker(1, "John", "Smith"), testWeights)
	if withBonus <= without {
		t.Fatalf("exact given name should lift the score: %v vs %v", withBonus, without)
	}
	if withBonus > 1.0 {
		t.Fatalf("score must cap at 1.0, got %v", withBonus)
	}
}
