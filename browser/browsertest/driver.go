// Package browsertest provides an in-memory browser.Driver for tests.
package browsertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/chenoh1990/scraping-assignment/browser"
)

// Node is a fake DOM element. Children are keyed by the selector that finds them.
type Node struct {
	Text     string
	Attrs    map[string]string
	Children map[browser.Selector][]*Node
}

// NewNode returns a node with the given text.
func NewNode(text string) *Node {
	return &Node{Text: text}
}

// Attr sets an attribute and returns the node.
func (n *Node) Attr(name, value string) *Node {
	if n.Attrs == nil {
		n.Attrs = map[string]string{}
	}
	n.Attrs[name] = value
	return n
}

// With appends children reachable through sel and returns the node.
func (n *Node) With(sel browser.Selector, children ...*Node) *Node {
	if n.Children == nil {
		n.Children = map[browser.Selector][]*Node{}
	}
	n.Children[sel] = append(n.Children[sel], children...)
	return n
}

// Document is a fake page.
type Document struct {
	Title      string
	ReadyState string
	Elements   map[browser.Selector][]*Node
}

// Add appends top-level elements reachable through sel and returns the document.
func (doc *Document) Add(sel browser.Selector, nodes ...*Node) *Document {
	if doc.Elements == nil {
		doc.Elements = map[browser.Selector][]*Node{}
	}
	doc.Elements[sel] = append(doc.Elements[sel], nodes...)
	return doc
}

// Driver is a browser.Driver over a set of fake documents keyed by URL.
// Navigating to an unregistered URL yields an empty document.
type Driver struct {
	// OnScroll is called with the current document after every scroll.
	OnScroll func(doc *Document, scrolls int)

	mu          sync.Mutex
	pages       map[string]*Document
	navigateErr map[string]error
	current     *Document
	visited     []string
	clicked     []*Node
	scrolls     int
	quits       int
}

var _ browser.Driver = (*Driver)(nil)

func NewDriver() *Driver {
	return &Driver{
		pages:       map[string]*Document{},
		navigateErr: map[string]error{},
		current:     &Document{},
	}
}

// AddPage registers doc under url and returns it.
func (d *Driver) AddPage(url string, doc *Document) *Document {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pages[url] = doc
	return doc
}

// FailNavigation makes navigation to url return err.
func (d *Driver) FailNavigation(url string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigateErr[url] = err
}

// Launcher returns a launcher that always hands out this driver.
func (d *Driver) Launcher() browser.Launcher {
	return func(context.Context) (browser.Driver, error) {
		return d, nil
	}
}

func (d *Driver) Visited() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.visited...)
}

func (d *Driver) Clicked() []*Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Node(nil), d.clicked...)
}

func (d *Driver) Scrolls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scrolls
}

func (d *Driver) Quits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.quits
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.visited = append(d.visited, url)
	if err, ok := d.navigateErr[url]; ok {
		return err
	}
	doc, ok := d.pages[url]
	if !ok {
		doc = &Document{}
	}
	d.current = doc
	d.scrolls = 0
	return nil
}

func (d *Driver) Title(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current.Title, nil
}

func (d *Driver) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	elements, err := d.FindAll(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(elements) == 0 {
		return nil, fmt.Errorf("%s: %w", sel, browser.ErrNotFound)
	}
	return elements[0], nil
}

func (d *Driver) FindAll(_ context.Context, sel browser.Selector) ([]browser.Element, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return wrap(d.current.Elements[sel]), nil
}

func (d *Driver) ScrollToBottom(context.Context) error {
	d.mu.Lock()
	d.scrolls++
	doc, scrolls, hook := d.current, d.scrolls, d.OnScroll
	d.mu.Unlock()

	if hook != nil {
		hook(doc, scrolls)
	}
	return nil
}

func (d *Driver) PageHeight(context.Context) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(1000 * (d.scrolls + 1)), nil
}

func (d *Driver) ReadyState(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current.ReadyState == "" {
		return "complete", nil
	}
	return d.current.ReadyState, nil
}

func (d *Driver) Click(_ context.Context, el browser.Element) error {
	e, ok := el.(*element)
	if !ok {
		return fmt.Errorf("click: foreign element %T", el)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clicked = append(d.clicked, e.node)
	return nil
}

func (d *Driver) Quit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.quits++
	return nil
}

type element struct {
	node *Node
}

func wrap(nodes []*Node) []browser.Element {
	elements := make([]browser.Element, 0, len(nodes))
	for _, n := range nodes {
		elements = append(elements, &element{node: n})
	}
	return elements
}

func (e *element) Text(context.Context) (string, error) {
	return e.node.Text, nil
}

func (e *element) Attribute(_ context.Context, name string) (string, bool, error) {
	v, ok := e.node.Attrs[name]
	return v, ok, nil
}

func (e *element) Find(ctx context.Context, sel browser.Selector) (browser.Element, error) {
	elements, _ := e.FindAll(ctx, sel)
	if len(elements) == 0 {
		return nil, fmt.Errorf("%s: %w", sel, browser.ErrNotFound)
	}
	return elements[0], nil
}

func (e *element) FindAll(_ context.Context, sel browser.Selector) ([]browser.Element, error) {
	return wrap(e.node.Children[sel]), nil
}
