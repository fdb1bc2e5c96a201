// Package filter implements the keyword heuristics that decide whether a
// channel post looks like a property sale ad, and how to read an author's
// reply to the opening question.
package filter

import "strings"

// ReplyClass is the result of classifying a private reply.
type ReplyClass int

const (
	// ReplyAmbiguous means neither keyword set matched exclusively.
	ReplyAmbiguous ReplyClass = iota
	// ReplyOwner means only owner-indicating keywords matched.
	ReplyOwner
	// ReplyAgent means only agent-indicating keywords matched.
	ReplyAgent
)

// String returns the string representation of a ReplyClass.
func (c ReplyClass) String() string {
	switch c {
	case ReplyOwner:
		return "OWNER"
	case ReplyAgent:
		return "AGENT"
	default:
		return "AMBIGUOUS"
	}
}

// Filter holds the configured keyword sets. All matching is case-insensitive
// substring matching; it is a pure function with no failure mode.
type Filter struct {
	postKeywords  []string
	ownerKeywords []string
	agentKeywords []string
}

// New creates a Filter from the configured keyword sets. Keywords are
// lowercased once here so matching stays cheap.
func New(postKeywords, ownerKeywords, agentKeywords []string) *Filter {
	return &Filter{
		postKeywords:  lowerAll(postKeywords),
		ownerKeywords: lowerAll(ownerKeywords),
		agentKeywords: lowerAll(agentKeywords),
	}
}

// IsPostRelevant reports whether the post text matches any of the configured
// post keywords. An empty keyword set means nothing is ever relevant.
func (f *Filter) IsPostRelevant(text string) bool {
	return matchesAny(strings.ToLower(text), f.postKeywords)
}

// ClassifyReply classifies a reply against the owner and agent keyword sets.
// Only an exclusive match in one set yields ReplyOwner or ReplyAgent; if both
// sets match, or neither does, the result is ReplyAmbiguous.
func (f *Filter) ClassifyReply(text string) ReplyClass {
	lower := strings.ToLower(text)
	isOwner := matchesAny(lower, f.ownerKeywords)
	isAgent := matchesAny(lower, f.agentKeywords)

	switch {
	case isOwner && !isAgent:
		return ReplyOwner
	case isAgent && !isOwner:
		return ReplyAgent
	default:
		return ReplyAmbiguous
	}
}

func matchesAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lowerAll(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, kw := range keywords {
		out[i] = strings.ToLower(kw)
	}
	return out
}
