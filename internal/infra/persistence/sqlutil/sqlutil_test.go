package sqlutil

import (
	"strings"
	"testing"

	"estatehub/pkg/domain"
)

func TestInsertBuildsPlaceholdersAndEncodesValues(t *testing.T) {
	cols := []domain.Column{
		{Name: "listingId", Value: domain.SeqKey(9)},
		{Name: "type", Value: "VIDEO"},
		{Name: "videoData", Value: domain.VideoPayload{Platform: "X", URL: "u", Duration: 30}},
	}
	q, args, err := Insert("listing_media", cols, Dollar, " RETURNING id")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	want := "INSERT INTO listing_media (listingId, type, videoData) VALUES ($1, $2, $3) RETURNING id"
	if q != want {
		t.Fatalf("query = %q, want %q", q, want)
	}
	if args[0] != int64(9) || args[1] != "VIDEO" {
		t.Fatalf("unexpected args %v", args)
	}
	if s, ok := args[2].(string); !ok || !strings.Contains(s, `"platform":"X"`) || strings.Contains(s, "blurhash") {
		t.Fatalf("unexpected payload arg %v", args[2])
	}
}

func TestInsertWithoutColumnsUsesDefaults(t *testing.T) {
	q, args, err := Insert("tiers", nil, Question, "")
	if err != nil || q != "INSERT INTO tiers DEFAULT VALUES" || len(args) != 0 {
		t.Fatalf("unexpected %q %v %v", q, args, err)
	}
}

func TestUpdateAppendsKey(t *testing.T) {
	q, args, err := Update("accounts", domain.OpaqueKey("u-1"), []domain.Column{{Name: "tierId", Value: domain.SeqKey(2)}}, Question)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if q != "UPDATE accounts SET tierId = ? WHERE id = ?" {
		t.Fatalf("unexpected query %q", q)
	}
	if len(args) != 2 || args[0] != int64(2) || args[1] != "u-1" {
		t.Fatalf("unexpected args %v", args)
	}
	if _, _, err := Update("accounts", domain.OpaqueKey("u-1"), nil, Question); err == nil {
		t.Fatalf("expected error for empty update")
	}
}

func TestCheckIdentRejectsInjection(t *testing.T) {
	for _, bad := range []string{"", "1abc", "users; DROP TABLE x", "a-b", `"quoted"`} {
		if err := CheckIdent(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	for _, good := range []string{"sub_regions", "regionId", "_x1"} {
		if err := CheckIdent(good); err != nil {
			t.Fatalf("unexpected rejection of %q: %v", good, err)
		}
	}
	if _, _, err := Insert("bad name", []domain.Column{{Name: "a", Value: 1}}, Question, ""); err == nil {
		t.Fatalf("expected table name rejection")
	}
}
