package interp

import (
	"context"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yourorg/trainlink/internal/browser"
	"github.com/yourorg/trainlink/internal/notify"
	"github.com/yourorg/trainlink/pkg/types"
)

const (
	pushHelperJS = `(html, target) => {
	let el = document.getElementById(target);
	if (!el) {
		el = document.createElement('div');
		el.id = target;
		(document.querySelector('main') || document.body).prepend(el);
	}
	el.innerHTML = html;
	return true;
}`
	eventTextsJS = `(sel) => Array.from(document.querySelectorAll(sel)).map(e => (e.textContent || '').trim())`
	clickEventJS = `(sel, i) => {
	const el = document.querySelectorAll(sel)[i];
	if (!el) return false;
	el.click();
	el.scrollIntoView({block: 'center'});
	return true;
}`
	clickChoiceJS = `(sel, name) => {
	for (const el of document.querySelectorAll(sel)) {
		const t = el.getAttribute('alt') || el.getAttribute('title') || el.textContent || '';
		if (t.includes(name)) { el.click(); return true; }
	}
	return false;
}`
)

// DeepLink builds the helper page URL for a deck. Each dash-separated part
// is the decimal concatenation of its ids written in base 36.
func DeepLink(host, game string, cardID, scenarioID int64, supports [6]int64) string {
	host = strings.Trim(host, "/")
	game = strings.Trim(game, "/")
	return fmt.Sprintf("https://%s/%s/training-event-helper?deck=%s-%s-%s", host, game,
		base36(cardID, scenarioID),
		base36(supports[0], supports[1], supports[2]),
		base36(supports[3], supports[4], supports[5]))
}

func base36(ids ...int64) string {
	var sb strings.Builder
	for _, id := range ids {
		sb.WriteString(strconv.FormatInt(id, 10))
	}
	n, ok := new(big.Int).SetString(sb.String(), 10)
	if !ok {
		return "0"
	}
	return n.Text(36)
}

// MatchEvent picks the on-page text that best matches one of the admissible
// titles. A text qualifies when it contains a title; the smallest length
// surplus over the contained title wins, ties go to the smallest summed
// length difference across all titles. It returns -1 when nothing matches.
func MatchEvent(texts, titles []string) int {
	best, bestSurplus, bestDist := -1, 0, 0
	for idx, text := range texts {
		text = strings.TrimSpace(text)
		n := utf8.RuneCountInString(text)
		surplus := -1
		dist := 0
		for _, title := range titles {
			title = strings.TrimSpace(title)
			if title == "" {
				continue
			}
			tn := utf8.RuneCountInString(title)
			dist += abs(n - tn)
			if strings.Contains(text, title) && (surplus < 0 || n-tn < surplus) {
				surplus = n - tn
			}
		}
		if surplus < 0 {
			continue
		}
		if best < 0 || surplus < bestSurplus || (surplus == bestSurplus && dist < bestDist) {
			best, bestSurplus, bestDist = idx, surplus, dist
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// AfterRaceLabel maps a finishing position to the event title the helper
// page uses for the after-race story.
func (i *Interpreter) AfterRaceLabel(rank int64) string {
	labels := i.opts.Rules.RaceLabels
	switch {
	case rank == 1:
		return labels.Win
	case rank >= 2 && rank <= 5:
		return labels.Placed
	default:
		return labels.Lost
	}
}

func (i *Interpreter) eventTitles(sc *ScenarioContext, storyID int64) []string {
	if slices.Contains(i.opts.Rules.AfterRaceStoryIDs, storyID) {
		return []string{i.AfterRaceLabel(sc.LastRaceRank)}
	}
	if i.opts.RefData == nil {
		return nil
	}
	return i.opts.RefData.StoryTitles(storyID)
}

// onUncheckedEvent selects the pending story event on the helper page.
func (i *Interpreter) onUncheckedEvent(ctx context.Context, _, m types.Message) error {
	sc := i.run
	if sc == nil {
		return nil
	}
	ev := m.Maps("unchecked_event_array")
	if len(ev) == 0 {
		return nil
	}
	event := ev[0]
	titles := i.eventTitles(sc, event.Int("story_id"))
	if len(titles) == 0 {
		return nil
	}
	if !i.ensureHelperPage(ctx, sc) {
		return nil
	}

	card := event.Map("event_contents_info").Int("support_card_id")
	if card != 0 && !slices.Contains(sc.Supports[:], card) && i.opts.RefData != nil {
		i.script(ctx, clickChoiceJS, i.opts.Browse.ChoiceSelector, i.opts.RefData.SupportCardName(card))
	}

	out, ok := i.script(ctx, eventTextsJS, i.opts.Browse.EventSelector)
	if !ok {
		return nil
	}
	texts := toStrings(out)
	idx := MatchEvent(texts, titles)
	if idx < 0 {
		i.logger.Debug("event not found on helper page", "story_id", event.Int("story_id"), "titles", titles, "candidates", len(texts))
		return nil
	}
	i.script(ctx, clickEventJS, i.opts.Browse.EventSelector, idx)
	return nil
}

func toStrings(v any) []string {
	raw, _ := v.([]any)
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		s, _ := r.(string)
		out = append(out, s)
	}
	return out
}

// syncHelper makes sure the helper page for the run is open and pushes the
// rendered table into it.
func (i *Interpreter) syncHelper(ctx context.Context, sc *ScenarioContext, html string) {
	if !i.ensureHelperPage(ctx, sc) {
		return
	}
	i.script(ctx, pushHelperJS, html, i.opts.Browse.HelperTarget)
}

func (i *Interpreter) ensureHelperPage(ctx context.Context, sc *ScenarioContext) bool {
	b := i.opts.Browser
	if b.IsAlive(ctx) && b.URL() == sc.URL {
		return true
	}
	if err := b.EnsureOpen(ctx, sc.URL); err != nil {
		i.browserFailed("open", err)
		return false
	}
	if i.rect != (browser.Rect{}) {
		if err := b.SetWindowRect(ctx, i.rect); err != nil {
			i.logger.Debug("restore helper window failed", "error", err)
		}
	}
	return true
}

// script runs js in the helper page. Failures are dropped with a warning;
// repeating a DOM action risks clicking twice.
func (i *Interpreter) script(ctx context.Context, js string, args ...any) (any, bool) {
	out, err := i.opts.Browser.ExecuteScript(ctx, js, args...)
	if err != nil {
		i.browserFailed("script", err)
		return nil, false
	}
	return out, true
}

func (i *Interpreter) browserFailed(op string, err error) {
	i.logger.Warn("helper page action dropped", "op", op, "error", err)
	i.opts.Notifier.NotifyOnce("browser:"+op+":"+err.Error(), notify.Warning,
		"Helper page not updated", err.Error())
}

// closeBrowser remembers the helper window geometry and closes it.
func (i *Interpreter) closeBrowser(ctx context.Context) {
	b := i.opts.Browser
	if b.IsAlive(ctx) {
		if r, err := b.WindowRect(ctx); err == nil {
			i.rect = r
		}
	}
	if err := b.Close(); err != nil {
		i.logger.Debug("close helper page failed", "error", err)
	}
}
