package auditlog

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bigredeye/scoreledger/internal/models"
)

func TestEncodeDecode(t *testing.T) {
	codec := NewCodec("scoreledger")
	submission := models.Submission{
		Exercise:   "h1/ex2",
		Submitter:  "alice",
		Org:        "ve482",
		Repo:       "alice-hw",
		CommitHash: "0123abcd",
		Groups:     []string{"joj", "Run"},
	}

	message := codec.Encode(&submission, Metadata{Key: "score", Value: "80"}, Metadata{Key: "groups", Value: "evil"})
	expected := "scoreledger: update scoreboard for h1/ex2 by @alice in ve482/alice-hw@0123abcd\n\ngroups: joj,Run\nscore: 80\n"
	if message != expected {
		t.Fatalf("Unexpected message:\n%q\nexpected:\n%q", message, expected)
	}

	decoded, ok := codec.Decode(message)
	if !ok {
		t.Fatal("Failed to decode own message")
	}
	if diff := cmp.Diff(submission, decoded); diff != "" {
		t.Fatalf("Decoded submission mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeWithoutBody(t *testing.T) {
	codec := NewCodec("scoreledger")
	decoded, ok := codec.Decode("scoreledger: update scoreboard for exam 1 by @bob in org/bob-repo@ffff")
	if !ok {
		t.Fatal("Expected message to match")
	}
	expected := models.Submission{Exercise: "exam 1", Submitter: "bob", Org: "org", Repo: "bob-repo", CommitHash: "ffff"}
	if diff := cmp.Diff(expected, decoded); diff != "" {
		t.Fatalf("Decoded submission mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeWithoutCommit(t *testing.T) {
	codec := NewCodec("scoreledger")
	submission := models.Submission{Exercise: "hw1", Submitter: "bob", Org: "org", Repo: "bob-repo"}

	decoded, ok := codec.Decode(codec.Encode(&submission))
	if !ok {
		t.Fatal("Failed to decode message without commit hash")
	}
	if diff := cmp.Diff(submission, decoded); diff != "" {
		t.Fatalf("Decoded submission mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeIgnoresForeignMessages(t *testing.T) {
	codec := NewCodec("scoreledger")
	for _, message := range []string{
		"",
		"Initial commit",
		"otherbot: update scoreboard for hw1 by @alice in org/repo@abc",
		"scoreledger: update scoreboard for hw1 by alice in org/repo@abc",
		"scoreledger: update scoreboard for hw1 by @alice in repo@abc",
		"Merge branch 'grading'\n\nscoreledger: update scoreboard for hw1 by @alice in org/repo@abc",
	} {
		if _, ok := codec.Decode(message); ok {
			t.Errorf("Message %q should not match", message)
		}
	}
}

func TestHasGroup(t *testing.T) {
	groups := ParseGroups(" joj , ,Run,")
	if diff := cmp.Diff([]string{"joj", "Run"}, groups); diff != "" {
		t.Fatalf("Unexpected groups (-want +got):\n%s", diff)
	}
	if !HasGroup(groups, "run") || !HasGroup(groups, "JOJ") {
		t.Fatal("Expected case-insensitive match")
	}
	if HasGroup(groups, "jo") {
		t.Fatal("Substring must not match")
	}
}
