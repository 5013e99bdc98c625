package placeholder

import (
	"strings"
	"testing"
)

func TestProtectRestoreRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		text string
	}{
		{name: "plain prose", text: "Just an ordinary sentence."},
		{name: "template", text: "Visit {{Template|x}} today."},
		{name: "nested template", text: "Start {{Outer|{{Inner|1}}|2}} end."},
		{name: "link", text: "Hello [[World]] out there."},
		{name: "link with display", text: "See [[Target page|the target]]."},
		{name: "file link", text: "[[File:Dance.jpg|thumb|A dancer]] A caption follows."},
		{name: "ref block", text: `Cited fact.<ref name="a">Source text</ref> More prose.`},
		{name: "self closing ref", text: `Another fact.<ref name="a" /> Continued.`},
		{name: "references section", text: "Intro.\n<references />"},
		{name: "comment", text: "Before <!-- BOT_MARKER --> after."},
		{name: "magic word", text: "__NOTOC__\nA heading follows."},
		{name: "url", text: "Read https://example.org/page?x=1 for details."},
		{name: "code block", text: "Run <code>make install</code> first."},
		{name: "nowiki", text: "Literal <nowiki>[[not a link]]</nowiki> here."},
		{name: "mixed", text: "{{Infobox|a=1}} Hello [[World]] <ref>x</ref> visit https://e.org __TOC__ done."},
		{name: "multiline", text: "First line {{T|1}}\n\nSecond [[L]] line\n<references/>\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Protect(tc.text, Options{ProtectLinks: true})
			restored, report := Restore(res.Working, res.Map)
			if !report.Clean() {
				t.Fatalf("identity restore not clean: %+v", report)
			}
			if restored != tc.text {
				t.Fatalf("round trip mismatch:\n got: %q\nwant: %q", restored, tc.text)
			}
		})
	}
}

func TestProtectHidesMarkupFromEngine(t *testing.T) {
	text := "Hello [[World]], visit {{Template|x}} and https://example.org now."
	res := Protect(text, Options{ProtectLinks: true})
	for _, fragment := range []string{"[[World]]", "{{Template|x}}", "https://example.org"} {
		if strings.Contains(res.Working, fragment) {
			t.Fatalf("working text leaked protected span %q: %q", fragment, res.Working)
		}
	}
	if got := res.Map.Len(); got != 3 {
		t.Fatalf("expected 3 protected spans, got %d", got)
	}
}

func TestRestoreReportsMissingToken(t *testing.T) {
	res := Protect("Hello [[World]] and {{T|1}}.", Options{ProtectLinks: true})
	// Engine dropped the first token entirely.
	mutilated := strings.Replace(res.Working, res.Map.Spans()[0].Token, "", 1)
	_, report := Restore(mutilated, res.Map)
	if len(report.Missing) != 1 {
		t.Fatalf("expected 1 missing token, got %+v", report)
	}
	if report.Clean() {
		t.Fatal("report with missing token must not be clean")
	}
}

func TestRestoreReportsDuplicatedToken(t *testing.T) {
	res := Protect("Hello [[World]].", Options{ProtectLinks: true})
	token := res.Map.Spans()[0].Token
	duplicated := res.Working + " " + token
	restored, report := Restore(duplicated, res.Map)
	if len(report.Duplicated) != 1 {
		t.Fatalf("expected 1 duplicated token, got %+v", report)
	}
	if strings.Contains(restored, token) {
		t.Fatal("recognized token occurrences must all resolve")
	}
}

func TestRestoreReportsUnrecognizedToken(t *testing.T) {
	res := Protect("Hello [[World]].", Options{ProtectLinks: true})
	withInvented := res.Working + " __PH99__"
	restored, report := Restore(withInvented, res.Map)
	if len(report.Unrecognized) != 1 {
		t.Fatalf("expected 1 unrecognized token, got %+v", report)
	}
	if !strings.Contains(restored, "__PH99__") {
		t.Fatal("unrecognized tokens stay in place for QA to see")
	}
}

func TestCollidingSourceGetsNoncePrefix(t *testing.T) {
	text := "Literal __PH0__ already present plus [[Link]]."
	res := Protect(text, Options{ProtectLinks: true})
	restored, report := Restore(res.Working, res.Map)
	if restored != text {
		t.Fatalf("collision round trip mismatch:\n got: %q\nwant: %q", restored, text)
	}
	if !report.Clean() {
		t.Fatalf("collision restore not clean: %+v", report)
	}
}

func TestTranslatableFlag(t *testing.T) {
	pure := Protect("{{Infobox|a=1}}", Options{ProtectLinks: true})
	if pure.Translatable {
		t.Fatal("pure markup segment must not be translatable")
	}
	prose := Protect("Some words {{T}} here.", Options{ProtectLinks: true})
	if !prose.Translatable {
		t.Fatal("segment with prose must be translatable")
	}
}

func TestProtectedCounts(t *testing.T) {
	res := Protect("{{A}} {{B}} [[C]] https://e.org", Options{ProtectLinks: true})
	counts := res.Map.Protected()
	if counts[CategoryTemplate] != 2 || counts[CategoryLink] != 1 || counts[CategoryURL] != 1 {
		t.Fatalf("unexpected category counts: %v", counts)
	}
}

func TestRefClaimedBeforeTemplate(t *testing.T) {
	// A ref containing a template must be protected whole, as a reference.
	text := `Fact.<ref>{{cite web|url=x}}</ref>`
	res := Protect(text, Options{ProtectLinks: true})
	counts := res.Map.Protected()
	if counts[CategoryReference] != 1 || counts[CategoryTemplate] != 0 {
		t.Fatalf("ref should claim nested template: %v", counts)
	}
}
