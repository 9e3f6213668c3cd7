package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("disk full")
	err := Wrap(CodeBuildFailed, cause, "bulk load aborted")

	if !stdErrors.Is(err, cause) {
		t.Fatalf("expected wrapped cause to be findable")
	}
	if err.Code() != CodeBuildFailed {
		t.Fatalf("expected BUILD_FAILED, got %s", err.Code())
	}
}

func TestAsFindsTypedErrorThroughChain(t *testing.T) {
	inner := New(CodeCacheUnavailable, "no ready generation")
	wrapped := fmt.Errorf("query: %w", inner)

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeCacheUnavailable {
		t.Fatalf("expected CACHE_UNAVAILABLE, got %s", typed.Code())
	}
}

func TestIsMatchesCode(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeInvalidFilter, "no such filter"))
	if !Is(err, CodeInvalidFilter) {
		t.Fatal("expected Is to match INVALID_FILTER")
	}
	if Is(err, CodeContention) {
		t.Fatal("did not expect CONTENTION match")
	}
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.PublicMessage != metadataByCode[CodeInternal].PublicMessage {
		t.Fatalf("expected internal metadata, got %+v", meta)
	}
}

func TestDumpExtractsPGError(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		ConstraintName: "catalog_products_g1_code_key",
		TableName:      "catalog_products_g1",
	}
	err := Wrap(CodeBuildFailed, fmt.Errorf("insert: %w", pgErr), "bulk load")

	d := Dump(err)
	if d.Code != CodeBuildFailed {
		t.Fatalf("expected BUILD_FAILED in dump, got %s", d.Code)
	}
	if d.PGCode != "23505" {
		t.Fatalf("expected pg code extracted, got %q", d.PGCode)
	}
	if d.PGConstraint != "catalog_products_g1_code_key" {
		t.Fatalf("expected constraint name, got %q", d.PGConstraint)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected chain entries, got %v", d.Chain)
	}
}
