package moderation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modbot/internal/bus"
	"modbot/internal/domain"
	"modbot/internal/escalation"
	"modbot/internal/platform"
	"modbot/internal/report"
)

type fakeOracle struct {
	mu    sync.Mutex
	calls []string

	text     func(text string) (domain.Verdict, error)
	links    map[string]domain.Verdict
	linkErr  map[string]error
	images   map[string]domain.Verdict
	imageErr map[string]error
	audio    func(url, lang string) (domain.Verdict, error)
}

func (o *fakeOracle) record(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, s)
}

func (o *fakeOracle) ModerateText(_ context.Context, text string, max int) (domain.Verdict, error) {
	o.record(fmt.Sprintf("text:%q:%d", text, max))
	if o.text == nil {
		return domain.Verdict{}, nil
	}
	return o.text(text)
}

func (o *fakeOracle) ModerateLink(_ context.Context, url string) (domain.Verdict, error) {
	o.record("link:" + url)
	if err := o.linkErr[url]; err != nil {
		return domain.Verdict{}, err
	}
	return o.links[url], nil
}

func (o *fakeOracle) ModerateImage(_ context.Context, url string) (domain.Verdict, error) {
	o.record("image:" + url)
	if err := o.imageErr[url]; err != nil {
		return domain.Verdict{}, err
	}
	return o.images[url], nil
}

func (o *fakeOracle) ModerateAudio(_ context.Context, url, lang string, max int) (domain.Verdict, error) {
	o.record(fmt.Sprintf("audio:%s:%s:%d", url, lang, max))
	if o.audio == nil {
		return domain.Verdict{}, nil
	}
	return o.audio(url, lang)
}

type fakePlatform struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (p *fakePlatform) Name() string { return "fake" }

func (p *fakePlatform) record(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, s)
	return p.fail[s]
}

func (p *fakePlatform) DeleteMessage(context.Context, *domain.InboundMessage) error {
	return p.record("delete")
}

func (p *fakePlatform) React(_ context.Context, _ *domain.InboundMessage, emoji string) error {
	return p.record("react:" + emoji)
}

func (p *fakePlatform) TimeoutAuthor(_ context.Context, _ *domain.InboundMessage, d time.Duration, _ string) error {
	return p.record("timeout:" + d.String())
}

func (p *fakePlatform) AddRoleToAuthor(_ context.Context, _ *domain.InboundMessage, roleID string) error {
	return p.record("role:" + roleID)
}

func (p *fakePlatform) SendDirectMessage(_ context.Context, userID, _ string) error {
	return p.record("dm:" + userID)
}

func (p *fakePlatform) SendChannelMessage(_ context.Context, channelID string, _ ...report.Report) error {
	return p.record("send:" + channelID)
}

func (p *fakePlatform) log() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type harness struct {
	oracle   *fakeOracle
	platform *fakePlatform
	bus      *bus.Bus
	pipeline *Pipeline
	reports  []report.Report
	sinkErr  error
}

func newHarness(t *testing.T, o *fakeOracle, cfg Config) *harness {
	t.Helper()
	h := &harness{oracle: o, platform: &fakePlatform{fail: map[string]error{}}}
	h.bus = bus.New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	cfg.Oracle = o
	cfg.Platform = h.platform
	cfg.Bus = h.bus
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.Sink = func(_ context.Context, _ *domain.InboundMessage, r report.Report) error {
		h.reports = append(h.reports, r)
		h.platform.record("report:" + r.Title)
		return h.sinkErr
	}

	p, err := New(cfg)
	require.NoError(t, err)
	h.pipeline = p
	return h
}

func guildMessage(text string) *domain.InboundMessage {
	return &domain.InboundMessage{
		Platform:   "fake",
		ID:         "m1",
		ChannelID:  "c1",
		Author:     domain.Author{ID: "u1", Username: "mallory"},
		Text:       text,
		CanTimeout: true,
		CanDelete:  true,
	}
}

func verdict(names ...string) domain.Verdict {
	v := domain.Verdict{Source: "oracle"}
	for _, n := range names {
		v.Categories = append(v.Categories, domain.Category{Name: n, Confidence: 99})
	}
	return v
}

func TestModerate_EndToEndScenario(t *testing.T) {
	o := &fakeOracle{links: map[string]domain.Verdict{
		"discord.gg/evil": verdict(domain.CategoryBlackList),
	}}
	h := newHarness(t, o, Config{MuteRoleID: "mute"})

	h.pipeline.Moderate(context.Background(), guildMessage("check this out discord . gg/evil and also http://evil.test"))

	assert.Equal(t, []string{
		`text:"check this out and also ":50`,
		"link:discord.gg/evil",
		"link:http://evil.test",
	}, o.calls)

	calls := h.platform.log()
	require.Len(t, calls, 5)
	assert.ElementsMatch(t, []string{"timeout:24h0m0s", "role:mute", "delete"}, calls[:3])
	assert.Equal(t, []string{"report:Link Moderation", "react:✅"}, calls[3:])

	require.Len(t, h.reports, 1)
	assert.Equal(t, "BLACK_LIST", h.reports[0].Fields[0].Name)
}

func TestModerate_TextReport(t *testing.T) {
	o := &fakeOracle{text: func(string) (domain.Verdict, error) { return verdict("TOXIC"), nil }}
	h := newHarness(t, o, Config{})

	h.pipeline.Moderate(context.Background(), guildMessage("you are awful"))

	require.Len(t, h.reports, 1)
	assert.Equal(t, escalation.TitleText, h.reports[0].Title)
	assert.Equal(t, "you are awful", h.reports[0].Description)
	assert.Equal(t, []string{"report:Text Moderation"}, h.platform.log())
}

func TestModerate_LinkOnlyMessageSkipsTextCall(t *testing.T) {
	o := &fakeOracle{}
	h := newHarness(t, o, Config{})

	h.pipeline.Moderate(context.Background(), guildMessage("https://fine.test"))
	assert.Equal(t, []string{"link:https://fine.test"}, o.calls)
	assert.Equal(t, []string{"react:✅"}, h.platform.log())
}

func TestModerate_OracleFailureContinues(t *testing.T) {
	o := &fakeOracle{
		text:    func(string) (domain.Verdict, error) { return domain.Verdict{}, errors.New("timeout") },
		linkErr: map[string]error{"a.test": errors.New("503")},
		links:   map[string]domain.Verdict{"b.test": verdict("SUSPICIOUS")},
	}
	h := newHarness(t, o, Config{})

	h.pipeline.Moderate(context.Background(), guildMessage("hello a.test b.test"))

	assert.Contains(t, o.calls, "link:b.test")
	assert.Equal(t, []string{"react:🚫", "report:Link Moderation"}, h.platform.log())
}

func TestModerate_OraclePanicIsRecovered(t *testing.T) {
	o := &fakeOracle{text: func(string) (domain.Verdict, error) { panic("oracle exploded") }}
	h := newHarness(t, o, Config{})

	assert.NotPanics(t, func() {
		h.pipeline.Moderate(context.Background(), guildMessage("hi there ok.test"))
	})
	assert.Equal(t, []string{"react:✅"}, h.platform.log())
}

func TestModerate_EnforcementFailureKeepsGoing(t *testing.T) {
	o := &fakeOracle{links: map[string]domain.Verdict{"bit.ly/x": verdict(domain.CategoryURLShortener)}}
	h := newHarness(t, o, Config{})
	h.platform.fail["delete"] = errors.New("unknown message")
	h.platform.fail["timeout:5s"] = platform.ErrUnsupported

	h.pipeline.Moderate(context.Background(), guildMessage("bit.ly/x"))

	calls := h.platform.log()
	assert.ElementsMatch(t, []string{"timeout:5s", "delete", "dm:u1"}, calls[:3])
	assert.Equal(t, "report:Link Moderation", calls[3])
}

func TestModerate_CooldownAcrossLinks(t *testing.T) {
	o := &fakeOracle{links: map[string]domain.Verdict{
		"evil.test":  verdict(domain.CategoryBlackList),
		"bit.ly/x":   verdict(domain.CategoryURLShortener),
		"worse.test": verdict(domain.CategoryCustomBlackList),
	}}
	h := newHarness(t, o, Config{})

	h.pipeline.Moderate(context.Background(), guildMessage("evil.test bit.ly/x worse.test"))

	var timeouts []string
	for _, c := range h.platform.log() {
		if strings.HasPrefix(c, "timeout:") {
			timeouts = append(timeouts, c)
		}
	}
	assert.Equal(t, []string{"timeout:24h0m0s"}, timeouts)
	assert.Len(t, h.reports, 3)
}

func TestModerate_DirectMessageCannotTimeout(t *testing.T) {
	o := &fakeOracle{links: map[string]domain.Verdict{"evil.test": verdict(domain.CategoryBlackList)}}
	h := newHarness(t, o, Config{MuteRoleID: "mute"})

	msg := guildMessage("evil.test")
	msg.CanTimeout = false
	msg.CanDelete = false
	h.pipeline.Moderate(context.Background(), msg)

	assert.Equal(t, []string{"report:Link Moderation"}, h.platform.log())
}

func TestModerate_SkipsPlatformNativeLinks(t *testing.T) {
	o := &fakeOracle{}
	h := newHarness(t, o, Config{})

	h.pipeline.Moderate(context.Background(), guildMessage("https://tenor.com/view/cat-123"))
	assert.Empty(t, o.calls)
	assert.Empty(t, h.platform.log())
}

func TestModerate_Attachments(t *testing.T) {
	o := &fakeOracle{
		images: map[string]domain.Verdict{"https://cdn.test/a.png": verdict("NSFW")},
		audio: func(_, lang string) (domain.Verdict, error) {
			if lang == "fr-FR" {
				return domain.Verdict{Source: "bonjour", Categories: verdict("TOXIC").Categories}, nil
			}
			return domain.Verdict{Source: "hello"}, nil
		},
	}
	h := newHarness(t, o, Config{Languages: []string{"en-US", "fr-FR"}})

	msg := guildMessage("")
	msg.Attachments = []domain.Attachment{
		{URL: "https://cdn.test/a.png", ContentType: "image/png"},
		{URL: "https://cdn.test/b.bin"},
		{URL: "https://cdn.test/c.ogg", ContentType: "audio/ogg"},
	}
	msg.EmbeddedImages = []string{"https://cdn.test/a.png", "https://cdn.test/d.gif"}
	h.pipeline.Moderate(context.Background(), msg)

	assert.Equal(t, []string{
		"image:https://cdn.test/a.png",
		"audio:https://cdn.test/c.ogg:en-US:50",
		"audio:https://cdn.test/c.ogg:fr-FR:50",
		"image:https://cdn.test/d.gif",
	}, o.calls)

	require.Len(t, h.reports, 2)
	assert.Equal(t, escalation.TitleImage, h.reports[0].Title)
	assert.Equal(t, "https://cdn.test/a.png", h.reports[0].ImageURL)
	assert.Equal(t, escalation.TitleAudio, h.reports[1].Title)
	assert.Equal(t, "bonjour", h.reports[1].Description)
	assert.Empty(t, msg.Text)
}

func TestModerate_AttachmentFailuresContinue(t *testing.T) {
	o := &fakeOracle{
		text:     func(string) (domain.Verdict, error) { return verdict("SPAM"), nil },
		imageErr: map[string]error{"https://cdn.test/a.png": errors.New("502")},
		images: map[string]domain.Verdict{
			"https://cdn.test/b.png": verdict("NSFW"),
			"https://cdn.test/d.gif": verdict("GORE"),
		},
		audio: func(_, lang string) (domain.Verdict, error) {
			if lang == "en-US" {
				return domain.Verdict{}, errors.New("transcription timeout")
			}
			return domain.Verdict{Source: "bonjour", Categories: verdict("TOXIC").Categories}, nil
		},
	}
	h := newHarness(t, o, Config{Languages: []string{"en-US", "fr-FR"}})

	msg := guildMessage("look at this")
	msg.Attachments = []domain.Attachment{
		{URL: "https://cdn.test/a.png", ContentType: "image/png"},
		{URL: "https://cdn.test/c.ogg", ContentType: "audio/ogg"},
		{URL: "https://cdn.test/b.png", ContentType: "image/png"},
	}
	msg.EmbeddedImages = []string{"https://cdn.test/d.gif"}

	assert.NotPanics(t, func() { h.pipeline.Moderate(context.Background(), msg) })

	assert.Equal(t, []string{
		`text:"look at this":50`,
		"image:https://cdn.test/a.png",
		"audio:https://cdn.test/c.ogg:en-US:50",
		"audio:https://cdn.test/c.ogg:fr-FR:50",
		"image:https://cdn.test/b.png",
		"image:https://cdn.test/d.gif",
	}, o.calls)

	titles := make([]string, 0, len(h.reports))
	for _, r := range h.reports {
		titles = append(titles, r.Title)
	}
	assert.Equal(t, []string{
		escalation.TitleText,
		escalation.TitleAudio,
		escalation.TitleImage,
		escalation.TitleImage,
	}, titles)
	assert.Equal(t, "https://cdn.test/d.gif", h.reports[3].ImageURL)
}

func TestModerate_DefaultLanguage(t *testing.T) {
	o := &fakeOracle{}
	h := newHarness(t, o, Config{Languages: []string{" "}})

	msg := guildMessage("")
	msg.Attachments = []domain.Attachment{{URL: "https://cdn.test/c.mp3", ContentType: "audio/mpeg"}}
	h.pipeline.Moderate(context.Background(), msg)

	assert.Equal(t, []string{"audio:https://cdn.test/c.mp3:en-US:50"}, o.calls)
}

func TestModerate_ModerationEventAndSinkFailure(t *testing.T) {
	o := &fakeOracle{text: func(string) (domain.Verdict, error) { return verdict("SPAM"), nil }}
	h := newHarness(t, o, Config{})
	h.sinkErr = errors.New("missing access")

	var events []bus.ModerationEvent
	h.bus.OnModeration(func(context.Context, bus.ModerationEvent) error {
		return errors.New("listener down")
	})
	h.bus.OnModeration(func(_ context.Context, ev bus.ModerationEvent) error {
		events = append(events, ev)
		return nil
	})

	h.pipeline.Moderate(context.Background(), guildMessage("buy followers now"))

	require.Len(t, events, 1)
	assert.Equal(t, domain.KindText, events[0].Source)
	assert.Equal(t, "m1", events[0].Message.ID)
	assert.Len(t, h.reports, 1)
}

func TestModerate_NilMessage(t *testing.T) {
	h := newHarness(t, &fakeOracle{}, Config{})
	assert.NotPanics(t, func() { h.pipeline.Moderate(context.Background(), nil) })
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Platform: &fakePlatform{}})
	assert.Error(t, err)
	_, err = New(Config{Oracle: &fakeOracle{}})
	assert.Error(t, err)
}
