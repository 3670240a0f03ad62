package ioc

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/mailtriage/pkg/eml"
)

func strPtr(s string) *string { return &s }

func TestDefang(t *testing.T) {
	assert.Equal(t, "evil[.]com", DefangDomain("evil.com"))
	assert.Equal(t, "a[@]b[.]com", DefangEmail("a@b.com"))
	assert.Equal(t, "185[.]234[.]72[.]19", DefangIP("185.234.72.19"))
	assert.Equal(t, "hxxps://login[.]evil[.]com/a[.]php", DefangURL("https://login.evil.com/a.php"))
	assert.Equal(t, "hxxp://x[.]test", DefangURL("http://x.test"))
}

func TestRefang_RoundTrip(t *testing.T) {
	for _, s := range []string{"https://login.evil.com/a.php", "http://x.test", "a@b.com", "10.0.0.1"} {
		var defanged string
		switch {
		case strings.HasPrefix(s, "http"):
			defanged = DefangURL(s)
		case strings.Contains(s, "@"):
			defanged = DefangEmail(s)
		default:
			defanged = DefangIP(s)
		}
		assert.Equal(t, s, Refang(defanged))
	}
}

func phishEmail(t *testing.T) *eml.ParsedEmail {
	t.Helper()
	data, err := os.ReadFile("../eml/testdata/phish_paypal.eml")
	require.NoError(t, err)
	result, err := eml.ParseBytes(data)
	require.NoError(t, err)
	return result.Email
}

func TestExtract_PhishingSample(t *testing.T) {
	report := Extract(phishEmail(t))

	assert.Contains(t, report.URLs, "hxxps://paypa1-secure-verify[.]bit[.]ly/account/restore")
	assert.Contains(t, report.Domains, "www[.]paypal-security-check[.]com")
	assert.Equal(t, []string{"185[.]234[.]72[.]19"}, report.IPAddresses)
	assert.Contains(t, report.EmailAddresses, "support[@]paypal-help[.]net")
	assert.Empty(t, report.FileHashes)

	names := make([]string, len(report.HeadersOfInterest))
	for i, h := range report.HeadersOfInterest {
		names[i] = h.Name
	}
	assert.Equal(t, []string{
		"Received",
		"X-Originating-IP",
		"Return-Path Mismatch",
		"Reply-To Mismatch",
		"SPF",
		"DKIM",
		"DMARC",
	}, names)

	spf := report.HeadersOfInterest[4]
	assert.Equal(t, "fail", spf.Value)
	assert.Equal(t, "SPF validation result", spf.Reason)

	mismatch := report.HeadersOfInterest[2]
	assert.Equal(t, "From: PayPal Security Team <security@paypal.com> | Return-Path: <bounces@attacker-domain.xyz>", mismatch.Value)
	assert.Contains(t, mismatch.Reason, "possible spoofing")
}

func TestExtract_FileHashes(t *testing.T) {
	email := &eml.ParsedEmail{
		Attachments: []eml.Attachment{
			{Filename: "invoice.exe", SHA256: "abc"},
			{Filename: "unknown", SHA256: "def"},
		},
	}

	report := Extract(email)
	assert.Equal(t, []FileHash{{"invoice.exe", "abc"}, {"unknown", "def"}}, report.FileHashes)
	assert.Equal(t, 2, report.Total())
}

func TestHeadersOfInterest_ReceivedCap(t *testing.T) {
	email := &eml.ParsedEmail{
		Headers: []eml.Header{
			{Name: "Received", Value: "from a by b"},
			{Name: "Received", Value: "by c with local"},
			{Name: "Received", Value: "from d by e"},
			{Name: "Received", Value: "from f by g"},
			{Name: "Received", Value: "from h by i"},
			{Name: "X-Mailer", Value: "BulkMailer 9"},
		},
	}

	got := HeadersOfInterest(email)

	var received []string
	for _, h := range got {
		if h.Name == "Received" {
			received = append(received, h.Value)
		}
	}
	assert.Equal(t, []string{"from a by b", "from d by e", "from f by g"}, received)
	assert.Equal(t, "X-Mailer", got[3].Name)
	assert.Equal(t, "Email client used to send the message", got[3].Reason)
}

func TestHeadersOfInterest_Mismatches(t *testing.T) {
	tests := []struct {
		name        string
		from        string
		returnPath  *string
		replyTo     *string
		wantReturn  bool
		wantReplyTo bool
	}{
		{"all match", "alice@example.com", strPtr("alice@example.com"), strPtr("alice@example.com"), false, false},
		{"return path contains from", "alice@example.com", strPtr("<alice@example.com>"), nil, false, false},
		{"case differs", "Alice@Example.com", strPtr("alice@example.com"), nil, true, false},
		{"empty return path", "alice@example.com", strPtr(""), strPtr(""), false, false},
		{"empty from", "", strPtr("x@y.test"), nil, false, false},
		{"reply-to elsewhere", "alice@example.com", nil, strPtr("attacker@gmail.com"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			email := &eml.ParsedEmail{From: tt.from, ReturnPath: tt.returnPath, ReplyTo: tt.replyTo}
			got := HeadersOfInterest(email)

			var hasReturn, hasReply bool
			for _, h := range got {
				hasReturn = hasReturn || h.Name == "Return-Path Mismatch"
				hasReply = hasReply || h.Name == "Reply-To Mismatch"
			}
			assert.Equal(t, tt.wantReturn, hasReturn)
			assert.Equal(t, tt.wantReplyTo, hasReply)

			require.GreaterOrEqual(t, len(got), 3)
			assert.Equal(t, "DMARC", got[len(got)-1].Name)
		})
	}
}

func TestFormatForCopy(t *testing.T) {
	report := &Report{
		Domains:    []string{"evil[.]com"},
		URLs:       []string{"hxxp://evil[.]com/x"},
		FileHashes: []FileHash{{Filename: "a.zip", SHA256: "ff"}},
		HeadersOfInterest: []HeaderOfInterest{
			{Name: "SPF", Value: "fail"},
		},
	}

	want := "## Domains\n- evil[.]com\n\n" +
		"## URLs\n- hxxp://evil[.]com/x\n\n" +
		"## File Hashes\n- a.zip: SHA256: ff\n\n" +
		"## Headers of Interest\n- SPF: fail\n"

	assert.Equal(t, want, FormatForCopy(report))
	assert.Equal(t, "", FormatForCopy(&Report{}))
}
