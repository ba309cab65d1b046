package diff

import "github.com/sergi/go-diff/diffmatchpatch"

// RenderPatch produces a unified-patch style rendering of the change from
// oldContent to newContent, for version history views. The block-level
// Result remains the machine contract; this is presentation only.
func RenderPatch(oldContent, newContent string) string {
	dmp := diffmatchpatch.New()
	patches := dmp.PatchMake(oldContent, newContent)
	return dmp.PatchToText(patches)
}

// RenderInline returns a compact inline rendering of the change, with
// deletions and insertions marked, suitable for log lines and previews.
func RenderInline(oldContent, newContent string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldContent, newContent, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}
