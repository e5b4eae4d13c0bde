// PGN move tree with variation (RAV) support: parse the interchange text
// into a tree, render the tree back out. Sibling order is first-seen order
// and the first child is the mainline, so parse(render(tree)) reproduces an
// equivalent tree. Tags ride through unchanged.

package app

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/notnil/chess"

	"github.com/tidypy/Tidypy-Chess-Rep-Builder/app/models"
)

// Node is one played move and the position after it. Children are ordered;
// the first child is the mainline continuation. A node is owned by its
// parent; the root (Move == nil) is owned by the Game.
type Node struct {
	Move     *chess.Move
	SAN      string
	Pos      *chess.Position // position after Move
	Ply      int             // absolute ply; 0 at a standard-start root
	Parent   *Node
	Children []*Node
	Comment  string
	NAGs     []int
}

// AddChild appends a new node for move, reusing an existing child when the
// same move is already present (keeps grafting idempotent).
func (n *Node) AddChild(move *chess.Move) *Node {
	uci := chess.UCINotation{}.Encode(n.Pos, move)
	for _, c := range n.Children {
		if (chess.UCINotation{}).Encode(n.Pos, c.Move) == uci {
			return c
		}
	}
	child := &Node{
		Move:   move,
		SAN:    chess.AlgebraicNotation{}.Encode(n.Pos, move),
		Pos:    n.Pos.Update(move),
		Ply:    n.Ply + 1,
		Parent: n,
	}
	n.Children = append(n.Children, child)
	return child
}

// MoveUCI returns the node's move in UCI notation, "" at the root.
func (n *Node) MoveUCI() string {
	if n.Move == nil || n.Parent == nil {
		return ""
	}
	return chess.UCINotation{}.Encode(n.Parent.Pos, n.Move)
}

func (n *Node) HasNAG(nag int) bool {
	for _, g := range n.NAGs {
		if g == nag {
			return true
		}
	}
	return false
}

type Tag struct {
	Name  string
	Value string
}

// Game is a parsed PGN game: ordered header tags plus the move tree.
type Game struct {
	Tags   []Tag
	Root   *Node
	Result string
}

func NewTreeGame() *Game {
	return &Game{
		Root:   &Node{Pos: chess.NewGame().Position()},
		Result: "*",
	}
}

func (g *Game) Tag(name string) string {
	for _, t := range g.Tags {
		if t.Name == name {
			return t.Value
		}
	}
	return ""
}

// SetTag updates an existing tag in place or appends a new one, keeping the
// original header order stable across rewrites.
func (g *Game) SetTag(name, value string) {
	for i, t := range g.Tags {
		if t.Name == name {
			g.Tags[i].Value = value
			return
		}
	}
	g.Tags = append(g.Tags, Tag{Name: name, Value: value})
}

// MainlineLength returns the game's ply count along the first-child chain.
func (g *Game) MainlineLength() int {
	n := 0
	for node := g.Root; len(node.Children) > 0; node = node.Children[0] {
		n++
	}
	return n
}

// Meta summarizes the game for logs and job reporting.
func (g *Game) Meta(index int) models.GameMeta {
	return models.GameMeta{
		Index:  index,
		Event:  g.Tag("Event"),
		White:  g.Tag("White"),
		Black:  g.Tag("Black"),
		Result: g.Result,
		Plies:  g.MainlineLength(),
	}
}

// ---- parsing ----

type pgnLexer struct {
	src []rune
	pos int
}

func (l *pgnLexer) eof() bool { return l.pos >= len(l.src) }

func (l *pgnLexer) peek() rune { return l.src[l.pos] }

func (l *pgnLexer) skipSpace() {
	for !l.eof() {
		ch := l.src[l.pos]
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' {
			l.pos++
			continue
		}
		// Line comments (";" and "%") run to end of line.
		if ch == ';' || ch == '%' {
			for !l.eof() && l.src[l.pos] != '\n' {
				l.pos++
			}
			continue
		}
		return
	}
}

// ParseGames reads every game in the stream.
func ParseGames(r io.Reader) ([]*Game, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, fmt.Errorf("read pgn: %w", err)
	}
	lex := &pgnLexer{src: []rune(string(data))}

	var games []*Game
	for {
		lex.skipSpace()
		if lex.eof() {
			return games, nil
		}
		g, err := parseOneGame(lex)
		if err != nil {
			return games, fmt.Errorf("game %d: %w", len(games)+1, err)
		}
		games = append(games, g)
	}
}

// ParseGame parses a single game from text.
func ParseGame(text string) (*Game, error) {
	games, err := ParseGames(strings.NewReader(text))
	if err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("no game found")
	}
	return games[0], nil
}

var resultTokens = map[string]bool{"1-0": true, "0-1": true, "1/2-1/2": true, "*": true}

func parseOneGame(lex *pgnLexer) (*Game, error) {
	g := &Game{Result: "*"}

	// Tag section.
	for {
		lex.skipSpace()
		if lex.eof() || lex.peek() != '[' {
			break
		}
		name, value, err := parseTagPair(lex)
		if err != nil {
			return nil, err
		}
		g.Tags = append(g.Tags, Tag{Name: name, Value: value})
	}

	root, err := rootFromTags(g)
	if err != nil {
		return nil, err
	}
	g.Root = root

	// Movetext.
	cur := root
	var stack []*Node
	for {
		lex.skipSpace()
		if lex.eof() {
			return g, nil
		}
		switch ch := lex.peek(); {
		case ch == '[':
			// Next game's tag section.
			return g, nil
		case ch == '{':
			comment, err := parseComment(lex)
			if err != nil {
				return nil, err
			}
			if cur.Comment == "" {
				cur.Comment = comment
			} else {
				cur.Comment += " " + comment
			}
		case ch == '(':
			lex.pos++
			if cur.Parent == nil {
				return nil, fmt.Errorf("variation before any move")
			}
			stack = append(stack, cur)
			cur = cur.Parent
		case ch == ')':
			lex.pos++
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced variation close")
			}
			cur = stack[len(stack)-1]
			stack = stack[:len(stack)-1]
		case ch == '$':
			lex.pos++
			start := lex.pos
			for !lex.eof() && lex.peek() >= '0' && lex.peek() <= '9' {
				lex.pos++
			}
			nag, err := strconv.Atoi(string(lex.src[start:lex.pos]))
			if err != nil {
				return nil, fmt.Errorf("bad NAG near offset %d", start)
			}
			cur.NAGs = append(cur.NAGs, nag)
		default:
			token := lex.readToken()
			if token == "" {
				return nil, fmt.Errorf("unexpected character %q", string(ch))
			}
			if resultTokens[token] {
				if len(stack) != 0 {
					return nil, fmt.Errorf("unterminated variation")
				}
				g.Result = token
				return g, nil
			}
			if isMoveNumber(token) {
				continue
			}
			move, err := chess.AlgebraicNotation{}.Decode(cur.Pos, token)
			if err != nil {
				return nil, fmt.Errorf("illegal move %q at ply %d: %w", token, cur.Ply+1, err)
			}
			cur = cur.AddChild(move)
		}
	}
}

func rootFromTags(g *Game) (*Node, error) {
	fen := g.Tag("FEN")
	if fen == "" {
		return &Node{Pos: chess.NewGame().Position()}, nil
	}
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("bad FEN tag: %w", err)
	}
	return &Node{Pos: chess.NewGame(opt).Position(), Ply: startingPly(fen)}, nil
}

// startingPly maps a FEN's side-to-move and fullmove fields to the absolute
// ply of the position, so move numbering and parity survive mid-game setups.
func startingPly(fen string) int {
	parts := strings.Fields(fen)
	if len(parts) < 2 {
		return 0
	}
	move := 1
	if len(parts) >= 6 {
		if n, err := strconv.Atoi(parts[5]); err == nil && n > 0 {
			move = n
		}
	}
	ply := (move - 1) * 2
	if parts[1] == "b" {
		ply++
	}
	return ply
}

func parseTagPair(lex *pgnLexer) (string, string, error) {
	lex.pos++ // consume '['
	lex.skipSpace()
	start := lex.pos
	for !lex.eof() && lex.peek() != ' ' && lex.peek() != '"' {
		lex.pos++
	}
	name := string(lex.src[start:lex.pos])
	lex.skipSpace()
	if lex.eof() || lex.peek() != '"' {
		return "", "", fmt.Errorf("malformed tag %q", name)
	}
	lex.pos++
	var value strings.Builder
	for !lex.eof() && lex.peek() != '"' {
		if lex.peek() == '\\' && lex.pos+1 < len(lex.src) {
			lex.pos++
		}
		value.WriteRune(lex.peek())
		lex.pos++
	}
	if lex.eof() {
		return "", "", fmt.Errorf("unterminated tag value for %q", name)
	}
	lex.pos++ // closing quote
	lex.skipSpace()
	if lex.eof() || lex.peek() != ']' {
		return "", "", fmt.Errorf("unterminated tag pair %q", name)
	}
	lex.pos++
	return name, value.String(), nil
}

func parseComment(lex *pgnLexer) (string, error) {
	lex.pos++ // consume '{'
	start := lex.pos
	for !lex.eof() && lex.peek() != '}' {
		lex.pos++
	}
	if lex.eof() {
		return "", fmt.Errorf("unterminated comment")
	}
	comment := strings.TrimSpace(string(lex.src[start:lex.pos]))
	lex.pos++
	return strings.Join(strings.Fields(comment), " "), nil
}

func (l *pgnLexer) readToken() string {
	start := l.pos
	for !l.eof() {
		ch := l.peek()
		if ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' ||
			ch == '{' || ch == '}' || ch == '(' || ch == ')' || ch == '$' || ch == '[' || ch == ']' {
			break
		}
		l.pos++
	}
	return string(l.src[start:l.pos])
}

// isMoveNumber matches "12.", "12...", and bare "12" indicators.
func isMoveNumber(token string) bool {
	token = strings.TrimRight(token, ".")
	if token == "" {
		return false
	}
	for _, ch := range token {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// ---- rendering ----

// Render serializes the game: tags, blank line, movetext with nested
// variations (mainline first), terminated by the result.
func (g *Game) Render() string {
	var sb strings.Builder
	for _, t := range g.Tags {
		fmt.Fprintf(&sb, "[%s \"%s\"]\n", t.Name, escapeTagValue(t.Value))
	}
	if len(g.Tags) > 0 {
		sb.WriteString("\n")
	}

	var tokens []string
	if g.Root.Comment != "" {
		tokens = append(tokens, "{"+sanitizeComment(g.Root.Comment)+"}")
	}
	tokens = renderLine(tokens, g.Root, true)
	tokens = append(tokens, g.Result)
	sb.WriteString(wrapTokens(tokens, 79))
	sb.WriteString("\n")
	return sb.String()
}

// renderLine emits node's subtree: mainline move, then each sibling
// variation parenthesized, then the mainline continuation.
func renderLine(tokens []string, node *Node, needNumber bool) []string {
	if len(node.Children) == 0 {
		return tokens
	}
	main := node.Children[0]
	tokens = appendMove(tokens, main, needNumber)

	interrupted := main.Comment != ""
	for _, alt := range node.Children[1:] {
		tokens = append(tokens, "(")
		tokens = appendMove(tokens, alt, true)
		tokens = renderLine(tokens, alt, moverIsBlack(alt) || alt.Comment != "")
		tokens = append(tokens, ")")
		interrupted = true
	}

	return renderLine(tokens, main, moverIsBlack(main) || interrupted)
}

// moverIsBlack reports whether the NEXT move after n needs a number prefix
// purely from parity: n's mover was Black when n.Ply is even.
func moverIsBlack(n *Node) bool {
	return n.Ply%2 == 0
}

func appendMove(tokens []string, n *Node, needNumber bool) []string {
	num, side := PlyToMove(n.Ply)
	switch {
	case side == models.PerspectiveWhite:
		tokens = append(tokens, fmt.Sprintf("%d.", num), n.SAN)
	case needNumber:
		tokens = append(tokens, fmt.Sprintf("%d...", num), n.SAN)
	default:
		tokens = append(tokens, n.SAN)
	}
	for _, nag := range n.NAGs {
		tokens = append(tokens, "$"+strconv.Itoa(nag))
	}
	if n.Comment != "" {
		tokens = append(tokens, "{"+sanitizeComment(n.Comment)+"}")
	}
	return tokens
}

func sanitizeComment(c string) string {
	return strings.ReplaceAll(c, "}", ")")
}

func escapeTagValue(v string) string {
	v = strings.ReplaceAll(v, "\\", "\\\\")
	return strings.ReplaceAll(v, "\"", "\\\"")
}

func wrapTokens(tokens []string, width int) string {
	var sb strings.Builder
	lineLen := 0
	for i, tok := range tokens {
		if i > 0 {
			if lineLen+1+len(tok) > width {
				sb.WriteString("\n")
				lineLen = 0
			} else {
				sb.WriteString(" ")
				lineLen++
			}
		}
		sb.WriteString(tok)
		lineLen += len(tok)
	}
	return sb.String()
}
