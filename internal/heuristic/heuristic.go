// Package heuristic implements deterministic pattern-based tab
// categorization. It is the universal fallback: it never fails and calls
// no external services.
package heuristic

import (
	"strings"

	"github.com/lotas/tabgruppen/internal/category"
	"github.com/lotas/tabgruppen/internal/limiter"
	"github.com/lotas/tabgruppen/internal/types"
)

// rule maps one category to the domain substrings, title keywords, and
// og:type / schema.org hints that signal it. Rules are ordered; on a score
// tie the earlier rule wins.
type rule struct {
	name     string
	domains  []string
	keywords []string
	ogTypes  []string
}

var rules = []rule{
	{
		name: "Dev",
		domains: []string{
			"github.com", "stackoverflow.com", "gitlab.com", "bitbucket.org",
			"npmjs.com", "docker.com", "kubernetes.io", "jetbrains.com",
			"codepen.io", "replit.com", "codesandbox.io", "dev.to",
			"pkg.go.dev", "godoc.org",
		},
		keywords: []string{
			"github", "stack overflow", "documentation", "tutorial", "api",
			"programming", "debug", "framework", "compiler", "sdk",
		},
	},
	{
		name: "Social",
		domains: []string{
			"facebook.com", "twitter.com", "x.com", "instagram.com",
			"linkedin.com", "reddit.com", "discord.com", "slack.com",
			"telegram.org", "tiktok.com", "pinterest.com", "mastodon.social",
			"bsky.app",
		},
		keywords: []string{"tweet", "timeline", "followers", "subreddit", "feed"},
		ogTypes:  []string{"profile"},
	},
	{
		name: "Entertainment",
		domains: []string{
			"youtube.com", "netflix.com", "twitch.tv", "hulu.com",
			"disneyplus.com", "primevideo.com", "hbomax.com", "vimeo.com",
			"imdb.com",
		},
		keywords: []string{"watch", "episode", "trailer", "movie", "series", "stream"},
		ogTypes:  []string{"video", "video.movie", "video.episode"},
	},
	{
		name: "Work",
		domains: []string{
			"mail.google.com", "gmail.com", "outlook.com",
			"docs.google.com", "sheets.google.com", "slides.google.com",
			"office.com", "notion.so", "monday.com", "asana.com", "trello.com",
			"atlassian.net", "jira.atlassian.com", "confluence.atlassian.com",
			"zoom.us", "teams.microsoft.com",
		},
		keywords: []string{"meeting", "sprint", "spreadsheet", "presentation", "invoice", "standup"},
	},
	{
		name: "Shopping",
		domains: []string{
			"amazon.com", "ebay.com", "walmart.com", "target.com",
			"bestbuy.com", "etsy.com", "aliexpress.com", "shopify.com",
		},
		keywords: []string{"cart", "checkout", "order", "price", "deal", "sale"},
		ogTypes:  []string{"product", "Product"},
	},
	{
		name: "News",
		domains: []string{
			"nytimes.com", "bbc.com", "bbc.co.uk", "cnn.com", "reuters.com",
			"bloomberg.com", "wsj.com", "theguardian.com", "washingtonpost.com",
			"npr.org", "apnews.com",
		},
		keywords: []string{"breaking", "news", "headline", "live updates"},
		ogTypes:  []string{"article", "NewsArticle"},
	},
	{
		name: "Cloud",
		domains: []string{
			"aws.amazon.com", "console.aws.amazon.com", "azure.microsoft.com",
			"cloud.google.com", "digitalocean.com", "heroku.com", "vercel.com",
			"netlify.com", "cloudflare.com", "firebase.google.com",
		},
		keywords: []string{"aws console", "kubernetes cluster", "deployment", "lambda", "instance"},
	},
	{
		name: "Docs",
		domains: []string{
			"developer.mozilla.org", "readthedocs.io", "devdocs.io",
			"docs.python.org", "go.dev",
		},
		keywords: []string{"reference manual", "user guide", "handbook"},
	},
	{
		name: "Finance",
		domains: []string{
			"paypal.com", "stripe.com", "coinbase.com", "robinhood.com",
			"fidelity.com", "chase.com", "wise.com", "finance.yahoo.com",
		},
		keywords: []string{"stock", "portfolio", "banking", "crypto", "invoice paid"},
	},
	{
		name: "AI",
		domains: []string{
			"chat.openai.com", "chatgpt.com", "claude.ai", "gemini.google.com",
			"huggingface.co", "openai.com", "anthropic.com", "ollama.com",
			"perplexity.ai",
		},
		keywords: []string{"llm", "prompt", "fine-tune", "machine learning", "neural"},
	},
	{
		name: "Education",
		domains: []string{
			"coursera.org", "udemy.com", "edx.org", "khanacademy.org",
			"duolingo.com", "brilliant.org",
		},
		keywords: []string{"course", "lecture", "lesson", "syllabus"},
	},
	{
		name: "Email",
		domains: []string{
			"mail.proton.me", "fastmail.com", "mail.yahoo.com",
		},
		keywords: []string{"inbox", "unread", "compose"},
	},
	{
		name: "Gaming",
		domains: []string{
			"store.steampowered.com", "steamcommunity.com", "epicgames.com",
			"gog.com", "itch.io", "ign.com",
		},
		keywords: []string{"gameplay", "walkthrough", "patch notes", "speedrun"},
		ogTypes:  []string{"game", "VideoGame"},
	},
	{
		name: "Music",
		domains: []string{
			"spotify.com", "open.spotify.com", "soundcloud.com",
			"music.apple.com", "bandcamp.com", "music.youtube.com",
		},
		keywords: []string{"playlist", "album", "lyrics"},
		ogTypes:  []string{"music", "music.song", "music.album"},
	},
	{
		name: "Health",
		domains: []string{
			"webmd.com", "mayoclinic.org", "nih.gov", "healthline.com",
		},
		keywords: []string{"symptoms", "fitness", "workout", "nutrition"},
	},
	{
		name: "Travel",
		domains: []string{
			"booking.com", "airbnb.com", "expedia.com", "kayak.com",
			"maps.google.com", "tripadvisor.com",
		},
		keywords: []string{"flight", "hotel", "itinerary", "directions"},
	},
	{
		name: "Food",
		domains: []string{
			"allrecipes.com", "seriouseats.com", "doordash.com",
			"ubereats.com", "yelp.com",
		},
		keywords: []string{"recipe", "restaurant", "delivery", "menu"},
		ogTypes:  []string{"Recipe"},
	},
	{
		name: "Sports",
		domains: []string{
			"espn.com", "skysports.com", "nba.com", "fifa.com", "flashscore.com",
		},
		keywords: []string{"score", "match", "league", "playoffs"},
	},
	{
		name: "Science",
		domains: []string{
			"arxiv.org", "nature.com", "sciencedirect.com", "pubmed.ncbi.nlm.nih.gov",
			"scholar.google.com",
		},
		keywords: []string{"paper", "abstract", "doi", "preprint"},
		ogTypes:  []string{"ScholarlyArticle"},
	},
	{
		name: "Design",
		domains: []string{
			"figma.com", "dribbble.com", "behance.net", "canva.com",
			"fonts.google.com",
		},
		keywords: []string{"mockup", "wireframe", "palette", "typography"},
	},
	{
		name: "Security",
		domains: []string{
			"cve.mitre.org", "nvd.nist.gov", "owasp.org", "haveibeenpwned.com",
		},
		keywords: []string{"vulnerability", "exploit", "cve-", "advisory"},
	},
	{
		name: "Reference",
		domains: []string{
			"wikipedia.org", "wiktionary.org", "britannica.com", "archive.org",
		},
		keywords: []string{"wiki", "encyclopedia", "definition"},
	},
}

// score returns the match strength of a rule against a tab: the longest
// matched domain substring plus the longest matched title keyword, with a
// fixed bonus when an og:type / schema.org hint agrees. Zero means no match.
func score(r rule, tab *types.Tab) int {
	domain := tab.Domain
	if domain == "" {
		domain = types.DomainOf(tab.URL)
	}
	title := strings.ToLower(tab.Title)

	total := 0
	for _, d := range r.domains {
		if len(d) > total && (domain == d || strings.HasSuffix(domain, "."+d) || strings.Contains(domain, d)) {
			total = len(d)
		}
	}
	best := 0
	for _, k := range r.keywords {
		if len(k) > best && strings.Contains(title, k) {
			best = len(k)
		}
	}
	total += best

	if total > 0 {
		for _, og := range r.ogTypes {
			if strings.EqualFold(tab.Meta.OGType, og) || strings.EqualFold(tab.Meta.SchemaType, og) {
				total += len(og)
				break
			}
		}
	}
	return total
}

// Classify assigns every tab to a category by pattern matching and caps the
// result at maxGroups. Tabs matching no rule land in Other.
func Classify(tabs []*types.Tab, maxGroups int) *types.Result {
	byName := make(map[string]*types.Assignment)
	order := []string{}

	assign := func(name string, id int) {
		a, ok := byName[name]
		if !ok {
			a = &types.Assignment{Name: name, Color: category.Color(name)}
			byName[name] = a
			order = append(order, name)
		}
		a.TabIDs = append(a.TabIDs, id)
	}

	for _, tab := range tabs {
		bestName := category.Other
		bestScore := 0
		for _, r := range rules {
			if s := score(r, tab); s > bestScore {
				bestScore = s
				bestName = r.name
			}
		}
		assign(bestName, tab.ID)
	}

	groups := make([]types.Assignment, 0, len(order))
	for _, name := range order {
		groups = append(groups, *byName[name])
	}
	return &types.Result{Groups: limiter.Limit(groups, maxGroups)}
}
