package methods

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/brianly1003/notepadtt/internal/content"
	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/domain/events"
	"github.com/brianly1003/notepadtt/internal/infostate"
	"github.com/brianly1003/notepadtt/internal/marker"
	"github.com/brianly1003/notepadtt/internal/metadata"
	"github.com/brianly1003/notepadtt/internal/rpc/handler"
	"github.com/brianly1003/notepadtt/internal/rpc/message"
	"github.com/brianly1003/notepadtt/internal/storage"
	"github.com/brianly1003/notepadtt/internal/subscription"
	"github.com/brianly1003/notepadtt/internal/testutil"
)

type tabsFixture struct {
	root  string
	state *infostate.State
	subs  *subscription.Registry
	hub   *testutil.MockEventHub
	svc   *TabsService
}

func newTabsFixture(t *testing.T, files map[string]string) *tabsFixture {
	t.Helper()
	root := t.TempDir()
	for name, text := range files {
		if err := os.WriteFile(filepath.Join(root, name), []byte(text), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	dir := storage.New(root, storage.Filter{})
	state := infostate.New(dir, metadata.NewStore(root), marker.NewTracker(marker.DefaultWindow))
	cs := content.New(state, dir, marker.NewTracker(marker.DefaultWindow), 16)
	subs := subscription.NewRegistry()
	hub := testutil.NewMockEventHub()

	return &tabsFixture{
		root:  root,
		state: state,
		subs:  subs,
		hub:   hub,
		svc:   NewTabsService(state, cs, subs, hub),
	}
}

func (f *tabsFixture) snapshot(t *testing.T) *domain.Info {
	t.Helper()
	info, err := f.state.GetSnapshot()
	if err != nil {
		t.Fatalf("GetSnapshot() error = %v", err)
	}
	return info
}

func (f *tabsFixture) id(t *testing.T, name string) string {
	t.Helper()
	id, ok := f.state.IdentifierFor(name)
	if !ok {
		t.Fatalf("%s is not tracked", name)
	}
	return id
}

func asClient(id string) context.Context {
	return handler.WithClientID(context.Background(), id)
}

func mustParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return data
}

func TestTabsService_GetInfoBootsEmptyDirectory(t *testing.T) {
	f := newTabsFixture(t, nil)

	result, rpcErr := f.svc.GetInfo(asClient("c1"), nil)
	if rpcErr != nil {
		t.Fatalf("GetInfo() error = %v", rpcErr)
	}
	info := result.(*domain.Info)
	if len(info.TabInfos) != 1 || info.TabInfos[0].Filename != infostate.DefaultTabName {
		t.Fatalf("tabs = %+v, want a single %q", info.TabInfos, infostate.DefaultTabName)
	}
	if info.Active() != info.TabInfos[0].FileID {
		t.Errorf("active = %q, want the only tab", info.Active())
	}
}

func TestTabsService_InfoChanged(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	cur := f.snapshot(t)
	cur.TabInfos[0].Filename = "b.txt"

	result, rpcErr := f.svc.InfoChanged(asClient("c1"), mustParams(t, cur))
	if rpcErr != nil {
		t.Fatalf("InfoChanged() error = %v", rpcErr)
	}
	info := result.(*domain.Info)
	if info.ChangeToken == cur.ChangeToken {
		t.Error("change token was not rotated")
	}
	if got, err := os.ReadFile(filepath.Join(f.root, "b.txt")); err != nil || string(got) != "alpha" {
		t.Errorf("b.txt = %q, %v", got, err)
	}

	pubs := f.hub.PublishedOfType(events.EventTypeInfo)
	if len(pubs) != 1 || pubs[0].Targets != nil {
		t.Fatalf("info publications = %+v, want one broadcast", pubs)
	}
}

func TestTabsService_InfoChangedErrors(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	cur := f.snapshot(t)

	stale := cur.Clone()
	stale.ChangeToken = "stale"
	invalid := cur.Clone()
	invalid.TabInfos[0].Filename = "dir/a.txt"

	tests := []struct {
		name   string
		params json.RawMessage
		code   int
	}{
		{"missing params", nil, message.InvalidParams},
		{"not an object", json.RawMessage(`[1,2]`), message.InvalidParams},
		{"missing tabInfos", json.RawMessage(`{"changeToken":"x"}`), message.InvalidParams},
		{"stale token", mustParams(t, stale), message.Conflict},
		{"invalid filename", mustParams(t, invalid), message.InvalidFilename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rpcErr := f.svc.InfoChanged(asClient("c1"), tt.params)
			if rpcErr == nil || rpcErr.Code != tt.code {
				t.Fatalf("error = %+v, want code %d", rpcErr, tt.code)
			}
		})
	}

	if n := len(f.hub.PublishedEvents()); n != 0 {
		t.Errorf("rejected updates published %d events", n)
	}
	if got := f.snapshot(t); got.ChangeToken != cur.ChangeToken {
		t.Error("rejected update changed the snapshot")
	}
}

func TestTabsService_InfoChangedPublishesWhenMetadataWriteFails(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	cur := f.snapshot(t)

	meta := filepath.Join(f.root, metadata.FileName)
	if err := os.Remove(meta); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(meta, 0o755); err != nil {
		t.Fatal(err)
	}

	cur.TabInfos[0].Filename = "b.txt"
	_, rpcErr := f.svc.InfoChanged(asClient("c1"), mustParams(t, cur))
	if rpcErr == nil {
		t.Fatal("InfoChanged() should report the metadata write failure")
	}

	pubs := f.hub.PublishedOfType(events.EventTypeInfo)
	if len(pubs) != 1 || pubs[0].Targets != nil {
		t.Fatalf("info publications = %+v, want one broadcast", pubs)
	}
	if got := f.snapshot(t); got.ChangeToken != pubs[0].Event.GetPayload().(*domain.Info).ChangeToken {
		t.Error("broadcast snapshot does not carry the current change token")
	}
}

func TestTabsService_SubscribeAndUnsubscribe(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	f.snapshot(t)
	id := f.id(t, "a.txt")

	result, rpcErr := f.svc.SubscribeTabContent(asClient("c1"), mustParams(t, FileIDParams{FileID: id}))
	if rpcErr != nil {
		t.Fatalf("SubscribeTabContent() error = %v", rpcErr)
	}
	if tc := result.(*domain.TabContent); tc.Text != "alpha" || tc.FileID != id {
		t.Errorf("content = %+v", tc)
	}
	if got := f.subs.List(id); len(got) != 1 || got[0] != "c1" {
		t.Errorf("subscribers = %v, want [c1]", got)
	}

	result, rpcErr = f.svc.SubscribeTabContent(asClient("c2"), mustParams(t, FileIDParams{FileID: "unknown"}))
	if rpcErr != nil {
		t.Fatalf("SubscribeTabContent(unknown) error = %v", rpcErr)
	}
	if tc := result.(*domain.TabContent); tc.Text != domain.BlankText {
		t.Errorf("unknown tab text = %q, want blank body", tc.Text)
	}

	if _, rpcErr := f.svc.UnsubscribeTabContent(asClient("c1"), mustParams(t, FileIDParams{FileID: id})); rpcErr != nil {
		t.Fatalf("UnsubscribeTabContent() error = %v", rpcErr)
	}
	if got := f.subs.List(id); len(got) != 0 {
		t.Errorf("subscribers after unsubscribe = %v", got)
	}

	if _, rpcErr := f.svc.SubscribeTabContent(asClient("c1"), mustParams(t, FileIDParams{})); rpcErr == nil || rpcErr.Code != message.InvalidParams {
		t.Errorf("empty fileId error = %+v", rpcErr)
	}
}

func TestTabsService_TabContentChanged(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	f.snapshot(t)
	id := f.id(t, "a.txt")
	f.subs.Add(id, "c1")
	f.subs.Add(id, "c2")
	f.subs.Add(id, "c3")

	text := "beta"
	_, rpcErr := f.svc.TabContentChanged(asClient("c1"), mustParams(t, TabContentParams{FileID: id, Text: &text}))
	if rpcErr != nil {
		t.Fatalf("TabContentChanged() error = %v", rpcErr)
	}

	if got, _ := os.ReadFile(filepath.Join(f.root, "a.txt")); string(got) != "beta" {
		t.Errorf("a.txt = %q, want beta", got)
	}

	pubs := f.hub.PublishedOfType(events.EventTypeTabContent)
	if len(pubs) != 1 {
		t.Fatalf("len(tabContent publications) = %d, want 1", len(pubs))
	}
	if strings.Join(pubs[0].Targets, ",") != "c2,c3" {
		t.Errorf("targets = %v, want [c2 c3]", pubs[0].Targets)
	}
	payload := pubs[0].Event.GetPayload().(domain.TabContent)
	if payload.FileID != id || payload.Text != "beta" {
		t.Errorf("payload = %+v", payload)
	}
}

func TestTabsService_TabContentChangedSoleSubscriber(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	f.snapshot(t)
	id := f.id(t, "a.txt")
	f.subs.Add(id, "c1")

	text := "beta"
	if _, rpcErr := f.svc.TabContentChanged(asClient("c1"), mustParams(t, TabContentParams{FileID: id, Text: &text})); rpcErr != nil {
		t.Fatalf("TabContentChanged() error = %v", rpcErr)
	}
	if n := len(f.hub.PublishedEvents()); n != 0 {
		t.Errorf("published %d events with no other subscribers", n)
	}
}

func TestTabsService_TabContentChangedErrors(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})
	f.snapshot(t)
	id := f.id(t, "a.txt")

	short := "ok"
	long := strings.Repeat("x", 17)

	tests := []struct {
		name   string
		params json.RawMessage
		code   int
	}{
		{"missing text", mustParams(t, map[string]string{"fileId": id}), message.InvalidParams},
		{"too large", mustParams(t, TabContentParams{FileID: id, Text: &long}), message.ContentTooLarge},
		{"unknown id", mustParams(t, TabContentParams{FileID: "nope", Text: &short}), message.NotFoundIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, rpcErr := f.svc.TabContentChanged(asClient("c1"), tt.params)
			if rpcErr == nil || rpcErr.Code != tt.code {
				t.Fatalf("error = %+v, want code %d", rpcErr, tt.code)
			}
		})
	}

	if got, _ := os.ReadFile(filepath.Join(f.root, "a.txt")); string(got) != "alpha" {
		t.Errorf("a.txt = %q, want it untouched", got)
	}
}

func TestTabsService_Connected(t *testing.T) {
	f := newTabsFixture(t, map[string]string{"a.txt": "alpha"})

	f.svc.Connected("c1")
	pubs := f.hub.PublishedOfType(events.EventTypeInfo)
	if len(pubs) != 1 || strings.Join(pubs[0].Targets, ",") != "c1" {
		t.Fatalf("first connect publications = %+v, want one to c1", pubs)
	}

	f.hub.Reset()
	if err := os.WriteFile(filepath.Join(f.root, "b.txt"), []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}

	f.svc.Connected("c2")
	pubs = f.hub.PublishedOfType(events.EventTypeInfo)
	if len(pubs) != 1 || pubs[0].Targets != nil {
		t.Fatalf("connect after external change = %+v, want one broadcast", pubs)
	}
	info := pubs[0].Event.GetPayload().(*domain.Info)
	if info.FindByFilename("b.txt") < 0 {
		t.Error("broadcast snapshot is missing b.txt")
	}
}

func TestTabsService_Disconnected(t *testing.T) {
	f := newTabsFixture(t, nil)
	f.subs.Add("t1", "c1")
	f.subs.Add("t2", "c1")
	f.subs.Add("t1", "c2")

	f.svc.Disconnected("c1")

	if got := f.subs.List("t1"); len(got) != 1 || got[0] != "c2" {
		t.Errorf("t1 subscribers = %v, want [c2]", got)
	}
	if got := f.subs.List("t2"); len(got) != 0 {
		t.Errorf("t2 subscribers = %v, want none", got)
	}
}

func TestServerErrorSnapshot(t *testing.T) {
	info := serverErrorSnapshot(domain.ErrPermissionDenied)

	if len(info.TabInfos) != 1 {
		t.Fatalf("len(tabs) = %d, want 1", len(info.TabInfos))
	}
	tab := info.TabInfos[0]
	if !strings.HasPrefix(tab.Filename, ServerErrorPrefix) || !tab.IsProtected {
		t.Errorf("tab = %+v", tab)
	}
	if info.Active() != tab.FileID {
		t.Error("placeholder tab should be active")
	}
}

func TestRegisterMethods(t *testing.T) {
	f := newTabsFixture(t, nil)
	registry := handler.NewRegistry()
	registry.RegisterService(f.svc)
	registry.RegisterService(NewDiscoverService(registry, handler.OpenRPCInfo{Title: "notepadtt"}, "ws://localhost/ws"))

	want := "GetInfo,InfoChanged,SubscribeTabContent,TabContentChanged,UnsubscribeTabContent,rpc.discover"
	if got := strings.Join(registry.Methods(), ","); got != want {
		t.Fatalf("Methods() = %s, want %s", got, want)
	}

	result, rpcErr := registry.Get("rpc.discover")(context.Background(), nil)
	if rpcErr != nil {
		t.Fatalf("rpc.discover error = %v", rpcErr)
	}
	spec := result.(*handler.OpenRPCSpec)
	if len(spec.Methods) != 6 {
		t.Errorf("len(spec.Methods) = %d, want 6", len(spec.Methods))
	}
}
