package ollama

import (
	"fmt"
	"strings"

	"github.com/zulandar/lectern/internal/capability"
)

const analysisSystemPrompt = `You extract knowledge from video transcripts.

Reply with JSON only, in this shape:
{
  "entries": [
    {
      "entry_type": "insight | tip | concept | technique | warning | resource | quote",
      "title": "headline under 80 characters",
      "content": "two to four sentences a reader can act on without the video",
      "source_quote": "short verbatim quote from the transcript",
      "source_start_time": 12.5,
      "source_end_time": 30.0,
      "confidence": 0.85,
      "categories": ["Broad Topic"],
      "tags": ["specific-keyword"]
    }
  ]
}

Entry types:
- insight: a non-obvious observation or conclusion
- tip: a specific recommendation
- concept: a term, framework or mental model
- technique: a method or procedure
- warning: a mistake or hazard to avoid
- resource: a tool, book or reference that was mentioned
- quote: a memorable statement

Guidelines:
- Three to eight entries per chunk. Fewer good entries beat many weak ones.
- Every entry quotes the transcript verbatim in source_quote.
- Times fall inside the chunk's time range.
- Confidence is 0.9 or more for stated facts, 0.7 to 0.9 for inferences, lower for speculation.
- One or two broad categories and two to five specific tags per entry.
- Skip greetings, filler, sponsor reads and channel promotion.
- If the chunk has nothing worth keeping, reply {"entries": []}.`

func analysisUserPrompt(req capability.ChunkRequest) string {
	desc := req.VideoDescription
	if desc == "" {
		desc = "N/A"
	} else if r := []rune(desc); len(r) > 300 {
		desc = string(r[:300])
	}
	return fmt.Sprintf(`Extract knowledge entries from this transcript chunk.

Video: %q
Channel: %s
Description: %s
Chunk: %d of %d
Time range: %.1fs - %.1fs

--- TRANSCRIPT ---
%s
--- END TRANSCRIPT ---`,
		req.VideoTitle, req.ChannelName, desc, req.Index+1, req.Total, req.StartTime, req.EndTime, req.Text)
}

const biasSystemPrompt = `You review knowledge entries taken from videos for commercial bias that
could skew the advice.

Bias types:
- brand_promotion: a brand recommended without comparison
- affiliate: affiliate links, discount codes or referral language
- sponsored: a sponsored segment
- product_placement: a product worked into otherwise neutral advice
- unsubstantiated_claim: product claims without evidence

Severity:
- low: a brand named in passing while giving functional advice
- medium: a brand presented as the obvious choice
- high: direct endorsement, affiliate push or sponsor read

Reply with JSON only.`

func biasUserPrompt(entries []capability.BiasEntry) string {
	var b strings.Builder
	b.WriteString("Check these entries for commercial bias:\n")
	for _, e := range entries {
		quote := e.SourceQuote
		if quote == "" {
			quote = "N/A"
		}
		fmt.Fprintf(&b, "\n[Entry %d]\nType: %s\nTitle: %s\nContent: %s\nSource Quote: %s\n",
			e.ID, e.EntryType, e.Title, e.Content, quote)
	}
	b.WriteString(`
Reply with:
{
  "results": [
    {
      "id": <entry id>,
      "is_biased": true,
      "bias_type": "brand_promotion|affiliate|sponsored|product_placement|unsubstantiated_claim",
      "bias_severity": "low|medium|high",
      "brand_names": ["Brand"],
      "bias_notes": "one sentence"
    }
  ]
}
List only biased entries. If none are biased, reply {"results": []}.`)
	return b.String()
}

const taxonomySystemPrompt = `You organize a knowledge base of entries taken from videos.
Reply with JSON only.`

func taxonomyEntries(b *strings.Builder, entries []capability.TaxonomyEntry) {
	for _, e := range entries {
		content := e.Content
		if r := []rune(content); len(r) > 200 {
			content = string(r[:200])
		}
		fmt.Fprintf(b, "\n[Entry %d] (%s) %s\n  Content: %s\n", e.ID, e.EntryType, e.Title, content)
	}
}

func categorizeUserPrompt(entries []capability.TaxonomyEntry, known []string) string {
	var b strings.Builder
	b.WriteString("Assign categories to these knowledge entries.\n\n")
	if len(known) > 0 {
		fmt.Fprintf(&b, "Available categories: %s\n\n", strings.Join(known, ", "))
	}
	b.WriteString("Entries:\n")
	taxonomyEntries(&b, entries)
	b.WriteString(`
For each entry, suggest one to three categories, preferring the available ones.
Reply with:
{
  "assignments": [
    {"id": <entry id>, "categories": ["Category"]}
  ]
}`)
	return b.String()
}

func tagUserPrompt(entries []capability.TaxonomyEntry) string {
	var b strings.Builder
	b.WriteString("Suggest two to five descriptive tags for each knowledge entry.\n")
	b.WriteString("Tags are lowercase, specific and useful for search.\n\nEntries:\n")
	taxonomyEntries(&b, entries)
	b.WriteString(`
Reply with:
{
  "assignments": [
    {"id": <entry id>, "tags": ["tag-one", "tag-two"]}
  ]
}`)
	return b.String()
}
