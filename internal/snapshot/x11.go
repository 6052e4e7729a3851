package snapshot

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xinerama"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/scenewatch/scenewatch/internal/config"
	"github.com/scenewatch/scenewatch/internal/logger"
)

// X11Provider enumerates top-level X11 windows, filters them to the
// configured applications of interest, and tags each with the physical
// display its center falls on.
type X11Provider struct {
	conn          *xgb.Conn
	root          xproto.Window
	screens       []screenRect
	classes       []*regexp.Regexp
	excludeTitles []*regexp.Regexp

	atomNetWMName       xproto.Atom
	atomWMName          xproto.Atom
	atomWMClass         xproto.Atom
	atomNetActiveWindow xproto.Atom
	atomUTF8String      xproto.Atom
}

type screenRect struct {
	x, y int
	w, h int
}

// NewX11Provider connects to the X server and caches the screen layout and
// the atoms used during enumeration.
func NewX11Provider(watch config.WatchConfig) (*X11Provider, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	setup := xproto.Setup(conn)
	root := setup.DefaultScreen(conn).Root

	p := &X11Provider{
		conn: conn,
		root: root,
	}

	for _, pat := range watch.Classes {
		re, err := regexp.Compile(pat)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("invalid class pattern %q: %w", pat, err)
		}
		p.classes = append(p.classes, re)
	}
	for _, pat := range watch.ExcludeTitles {
		re, err := regexp.Compile(pat)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pat, err)
		}
		p.excludeTitles = append(p.excludeTitles, re)
	}

	if err := p.internAtoms(); err != nil {
		conn.Close()
		return nil, err
	}
	if err := p.queryScreens(setup); err != nil {
		conn.Close()
		return nil, err
	}

	logger.WithComponent("snapshot").Info().
		Int("displays", len(p.screens)).
		Int("class_filters", len(p.classes)).
		Msg("X11 snapshot provider ready")
	return p, nil
}

// Close releases the X server connection.
func (p *X11Provider) Close() {
	p.conn.Close()
}

func (p *X11Provider) internAtoms() error {
	intern := func(name string) (xproto.Atom, error) {
		reply, err := xproto.InternAtom(p.conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			return 0, fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		return reply.Atom, nil
	}

	var err error
	if p.atomNetWMName, err = intern("_NET_WM_NAME"); err != nil {
		return err
	}
	if p.atomWMName, err = intern("WM_NAME"); err != nil {
		return err
	}
	if p.atomWMClass, err = intern("WM_CLASS"); err != nil {
		return err
	}
	if p.atomNetActiveWindow, err = intern("_NET_ACTIVE_WINDOW"); err != nil {
		return err
	}
	if p.atomUTF8String, err = intern("UTF8_STRING"); err != nil {
		return err
	}
	return nil
}

// queryScreens records the physical display rectangles. Xinerama gives one
// rectangle per monitor; without it the default screen counts as display 0.
func (p *X11Provider) queryScreens(setup *xproto.SetupInfo) error {
	if err := xinerama.Init(p.conn); err == nil {
		reply, err := xinerama.QueryScreens(p.conn).Reply()
		if err == nil && len(reply.ScreenInfo) > 0 {
			for _, si := range reply.ScreenInfo {
				p.screens = append(p.screens, screenRect{
					x: int(si.XOrg),
					y: int(si.YOrg),
					w: int(si.Width),
					h: int(si.Height),
				})
			}
			return nil
		}
	}

	screen := setup.DefaultScreen(p.conn)
	p.screens = []screenRect{{
		x: 0,
		y: 0,
		w: int(screen.WidthInPixels),
		h: int(screen.HeightInPixels),
	}}
	return nil
}

// displayAt maps a root-relative point to a display index. Points outside
// every screen rectangle fall back to display 0, matching how off-screen
// window centers should be treated.
func (p *X11Provider) displayAt(x, y int) int {
	for i, s := range p.screens {
		if x >= s.x && x < s.x+s.w && y >= s.y && y < s.y+s.h {
			return i
		}
	}
	return 0
}

// Enumerate walks the top-level windows and returns the filtered
// observations. Per-window failures (a window disappearing mid-walk) skip
// that window; the snapshot still reports everything gathered successfully.
func (p *X11Provider) Enumerate(ctx context.Context) ([]Window, error) {
	tree, err := xproto.QueryTree(p.conn, p.root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to query window tree: %w", err)
	}

	active := p.activeWindow()
	now := time.Now()

	windows := make([]Window, 0, len(tree.Children))
	for _, child := range tree.Children {
		select {
		case <-ctx.Done():
			return windows, ctx.Err()
		default:
		}

		w, ok := p.observe(child, active, now)
		if !ok {
			continue
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// observe builds one observation, applying the class and title filters.
func (p *X11Provider) observe(win xproto.Window, active xproto.Window, now time.Time) (Window, bool) {
	attrs, err := xproto.GetWindowAttributes(p.conn, win).Reply()
	if err != nil || attrs.MapState != xproto.MapStateViewable {
		return Window{}, false
	}

	title := p.windowTitle(win)
	if title == "" {
		return Window{}, false
	}
	for _, re := range p.excludeTitles {
		if re.MatchString(title) {
			return Window{}, false
		}
	}

	if len(p.classes) > 0 {
		class := p.stringProperty(win, p.atomWMClass)
		matched := false
		for _, re := range p.classes {
			if re.MatchString(class) {
				matched = true
				break
			}
		}
		if !matched {
			return Window{}, false
		}
	}

	display, ok := p.windowDisplay(win)
	if !ok {
		return Window{}, false
	}

	var lastActive time.Time
	if win == active {
		lastActive = now
	}

	return Window{
		Display:    display,
		Title:      title,
		ID:         uint32(win),
		LastActive: lastActive,
	}, true
}

// windowDisplay locates the display index of the window's center point.
func (p *X11Provider) windowDisplay(win xproto.Window) (int, bool) {
	geom, err := xproto.GetGeometry(p.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return 0, false
	}
	trans, err := xproto.TranslateCoordinates(p.conn, win, p.root, 0, 0).Reply()
	if err != nil {
		return 0, false
	}
	cx := int(trans.DstX) + int(geom.Width)/2
	cy := int(trans.DstY) + int(geom.Height)/2
	return p.displayAt(cx, cy), true
}

// activeWindow reads _NET_ACTIVE_WINDOW from the root window. Zero when the
// property is missing or nothing is focused.
func (p *X11Provider) activeWindow() xproto.Window {
	reply, err := xproto.GetProperty(
		p.conn, false, p.root,
		p.atomNetActiveWindow, xproto.AtomWindow,
		0, 1,
	).Reply()
	if err != nil || len(reply.Value) < 4 {
		return 0
	}
	return xproto.Window(xgb.Get32(reply.Value))
}

// windowTitle prefers the EWMH UTF-8 title, falling back to WM_NAME.
func (p *X11Provider) windowTitle(win xproto.Window) string {
	if title := p.stringProperty(win, p.atomNetWMName); title != "" {
		return title
	}
	return p.stringProperty(win, p.atomWMName)
}

func (p *X11Provider) stringProperty(win xproto.Window, atom xproto.Atom) string {
	reply, err := xproto.GetProperty(
		p.conn, false, win,
		atom, xproto.GetPropertyTypeAny,
		0, (1<<32)-1,
	).Reply()
	if err != nil || reply.ValueLen == 0 {
		return ""
	}
	return string(reply.Value)
}
