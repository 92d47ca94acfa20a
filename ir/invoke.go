package ir

// DataItem is a <datamodel><data id="..."> declaration, evaluated once in
// document order (W3C 5.3): at session initialization, except that under
// late binding a state's own items are evaluated on its first entry.
type DataItem struct {
	ID string

	// Exactly one of Expr, InlineContent, Src should be set.
	Expr          string
	InlineContent string
	Src           string
}

// InvokeNode is an immutable <invoke> declaration on a StateNode.
type InvokeNode struct {
	// ID is the literal invoke id (<invoke id="...">); empty if IDLocation
	// is used instead, in which case the manager generates one and writes
	// it into the data model location named by IDLocation.
	ID         string
	IDLocation string

	Type     string // invoke type URI; "" defaults to SCXML
	TypeExpr string

	Src     string
	SrcExpr string

	Autoforward bool

	Namelist []string
	Params   []Param

	// Finalize runs in the parent session, immediately before transition
	// selection, whenever an event's Origin matches this invoke's child
	// session (W3C 6.5).
	Finalize ActionBlock

	// Content is an inline chart (<invoke><content>...</content></invoke>)
	// used instead of Src/SrcExpr.
	Content *Chart

	DocumentOrder int
}
