// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package bitbucket

import (
	"context"
	"net/http"
	"testing"
)

const sampleDiff = `diff --git a/billing/invoice.go b/billing/invoice.go
index 1111111..2222222 100644
--- a/billing/invoice.go
+++ b/billing/invoice.go
@@ -1,4 +1,5 @@
 package billing
-const rate = 1
+const rate = 2
+const cap = 10
 
 func total() {}
diff --git a/billing/tax.go b/billing/tax.go
new file mode 100644
index 0000000..3333333
--- /dev/null
+++ b/billing/tax.go
@@ -0,0 +1,2 @@
+package billing
+// tax rules
diff --git a/old.txt b/old.txt
deleted file mode 100644
index 4444444..0000000
--- a/old.txt
+++ /dev/null
@@ -1 +0,0 @@
-gone
`

func TestParseDiffStat(t *testing.T) {
	stat, err := ParseDiffStat(sampleDiff)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stat.Files) != 3 {
		t.Fatalf("expected 3 files, got %d: %+v", len(stat.Files), stat.Files)
	}

	want := []FileChange{
		{Path: "billing/invoice.go", OldPath: "billing/invoice.go", Kind: FileModified, Added: 2, Deleted: 1},
		{Path: "billing/tax.go", Kind: FileAdded, Added: 2},
		{Path: "old.txt", OldPath: "old.txt", Kind: FileDeleted, Deleted: 1},
	}
	for i, w := range want {
		if got := stat.Files[i]; got != w {
			t.Errorf("file %d: expected %+v, got %+v", i, w, got)
		}
	}
	if stat.Added != 4 || stat.Deleted != 2 {
		t.Errorf("expected +4 -2, got +%d -%d", stat.Added, stat.Deleted)
	}
}

func TestParseDiffStat_Empty(t *testing.T) {
	stat, err := ParseDiffStat("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stat.Files) != 0 {
		t.Errorf("expected no files, got %+v", stat.Files)
	}
}

func TestGetCommitDiff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repositories/acme/api/diff/abc1234" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(sampleDiff))
	})

	stat, err := c.GetCommitDiff(context.Background(), "api", "abc1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stat.Hash != "abc1234" || len(stat.Files) != 3 {
		t.Errorf("unexpected stat %+v", stat)
	}
}
