package dialer

import (
	"strings"

	"voiceagents/internal/calls"
	"voiceagents/internal/campaigns"

	"github.com/valyala/fasttemplate"
)

// RenderPrompt fills {name}, {first_name}, {phone}, {email} and {campaign}
// in the campaign prompt. Unknown placeholders are left as written.
func RenderPrompt(tpl string, call calls.CampaignCall, c campaigns.Campaign) string {
	if !strings.Contains(tpl, "{") {
		return tpl
	}
	first := call.ContactName
	if i := strings.IndexByte(first, ' '); i > 0 {
		first = first[:i]
	}
	return fasttemplate.ExecuteStringStd(tpl, "{", "}", map[string]interface{}{
		"name":       call.ContactName,
		"first_name": first,
		"phone":      call.ContactPhone,
		"email":      call.ContactEmail,
		"campaign":   c.Name,
	})
}
