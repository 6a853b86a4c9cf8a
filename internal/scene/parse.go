package scene

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// bohr converts cube file coordinates to Ångström.
const bohr = 0.529177210903

// Atom is one parsed atom.
type Atom struct {
	Element string
	Pos     Vec3
}

// Model is the parsed content of a structure file.
type Model struct {
	Atoms []Atom

	// Opaque is set for formats whose coordinates are not read here; the
	// client's library parses them itself.
	Opaque bool
}

// Elements counts atoms per element symbol.
func (m *Model) Elements() map[string]int {
	counts := make(map[string]int)
	for _, a := range m.Atoms {
		el := a.Element
		if el == "" {
			el = "X"
		}
		counts[el]++
	}
	return counts
}

// ErrNoAtoms is returned when a readable format yields no coordinates.
var ErrNoAtoms = errors.New("no atoms found")

type parser func(lines []string) ([]Atom, error)

var parsers = map[string]parser{
	"pdb":  parsePDB,
	"ent":  parsePDB,
	"pqr":  parsePQR,
	"cif":  parseCIF,
	"xyz":  parseXYZ,
	"sdf":  parseMolfile,
	"mol":  parseMolfile,
	"mol2": parseMol2,
	"cube": parseCube,
}

// Parse reads atoms from content. Formats without a parser (binary mmtf,
// unknown extensions) are accepted as opaque models.
func Parse(content []byte, format string) (*Model, error) {
	p, ok := parsers[format]
	if !ok {
		return &Model{Opaque: true}, nil
	}

	lines, err := splitLines(content)
	if err != nil {
		return nil, err
	}

	atoms, err := p(lines)
	if err != nil {
		return nil, err
	}
	if len(atoms) == 0 {
		return nil, ErrNoAtoms
	}
	return &Model{Atoms: atoms}, nil
}

func splitLines(content []byte) ([]string, error) {
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lines: %w", err)
	}
	return lines, nil
}

func parseVec(xs, ys, zs string) (Vec3, error) {
	var v Vec3
	for i, s := range []string{xs, ys, zs} {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return v, fmt.Errorf("bad coordinate %q", s)
		}
		v[i] = f
	}
	return v, nil
}

// column returns line[from:to] clipped to the line length.
func column(line string, from, to int) string {
	if from >= len(line) {
		return ""
	}
	return line[from:min(to, len(line))]
}

// elementFromName guesses an element from an atom name like "CA" or "1HB".
func elementFromName(name string) string {
	name = strings.TrimLeftFunc(strings.TrimSpace(name), unicode.IsDigit)
	if name == "" {
		return ""
	}
	return strings.ToUpper(name[:1])
}

func normalizeElement(el string) string {
	el = strings.TrimSpace(el)
	if el == "" {
		return ""
	}
	if i := strings.IndexByte(el, '.'); i > 0 {
		el = el[:i] // mol2 types such as C.ar
	}
	return strings.ToUpper(el[:1]) + strings.ToLower(el[1:])
}

func isAtomRecord(line string) bool {
	return strings.HasPrefix(line, "ATOM") || strings.HasPrefix(line, "HETATM")
}

// parsePDB reads fixed-column ATOM/HETATM records, stopping after the first
// model of multi-model files.
func parsePDB(lines []string) ([]Atom, error) {
	var atoms []Atom
	for i, line := range lines {
		if strings.HasPrefix(line, "ENDMDL") && len(atoms) > 0 {
			break
		}
		if !isAtomRecord(line) {
			continue
		}

		pos, err := parseVec(column(line, 30, 38), column(line, 38, 46), column(line, 46, 54))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		el := normalizeElement(column(line, 76, 78))
		if el == "" {
			el = elementFromName(column(line, 12, 16))
		}
		atoms = append(atoms, Atom{Element: el, Pos: pos})
	}
	return atoms, nil
}

// parsePQR reads whitespace-separated records whose last five fields are
// x y z charge radius.
func parsePQR(lines []string) ([]Atom, error) {
	var atoms []Atom
	for i, line := range lines {
		if !isAtomRecord(line) {
			continue
		}

		f := strings.Fields(line)
		if len(f) < 8 {
			return nil, fmt.Errorf("line %d: too few fields", i+1)
		}
		n := len(f)
		pos, err := parseVec(f[n-5], f[n-4], f[n-3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		atoms = append(atoms, Atom{Element: elementFromName(f[2]), Pos: pos})
	}
	return atoms, nil
}

// parseCIF reads the _atom_site loop of an mmCIF file.
func parseCIF(lines []string) ([]Atom, error) {
	var (
		atoms   []Atom
		columns []string
		inLoop  bool
		inRows  bool
	)

	index := func(name string) int {
		for i, c := range columns {
			if c == name {
				return i
			}
		}
		return -1
	}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if line == "loop_" || line == "#" || strings.HasPrefix(line, "_") {
			if inRows {
				break
			}
			switch {
			case line == "loop_":
				inLoop, columns = true, nil
			case inLoop && strings.HasPrefix(line, "_atom_site."):
				columns = append(columns, strings.TrimPrefix(line, "_atom_site."))
			default:
				inLoop, columns = false, nil
			}
			continue
		}

		if len(columns) == 0 {
			continue
		}
		inRows = true

		xi, yi, zi := index("Cartn_x"), index("Cartn_y"), index("Cartn_z")
		if xi < 0 || yi < 0 || zi < 0 {
			return nil, errors.New("_atom_site loop has no Cartn_x/y/z columns")
		}

		f := strings.Fields(line)
		if len(f) != len(columns) {
			return nil, fmt.Errorf("line %d: expected %d fields, got %d", i+1, len(columns), len(f))
		}
		pos, err := parseVec(f[xi], f[yi], f[zi])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}

		var el string
		if ei := index("type_symbol"); ei >= 0 {
			el = normalizeElement(f[ei])
		}
		atoms = append(atoms, Atom{Element: el, Pos: pos})
	}
	return atoms, nil
}

// parseXYZ reads the first frame: count, comment, then "El x y z" lines.
func parseXYZ(lines []string) ([]Atom, error) {
	if len(lines) < 2 {
		return nil, errors.New("xyz header missing")
	}
	n, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("bad xyz atom count %q", strings.TrimSpace(lines[0]))
	}
	if len(lines) < 2+n {
		return nil, fmt.Errorf("xyz declares %d atoms but has %d lines", n, len(lines)-2)
	}

	atoms := make([]Atom, 0, n)
	for i := 2; i < 2+n; i++ {
		f := strings.Fields(lines[i])
		if len(f) < 4 {
			return nil, fmt.Errorf("line %d: too few fields", i+1)
		}
		pos, err := parseVec(f[1], f[2], f[3])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		atoms = append(atoms, Atom{Element: normalizeElement(f[0]), Pos: pos})
	}
	return atoms, nil
}

// parseMolfile reads the first record of an MDL molfile or SD file, V2000
// or V3000.
func parseMolfile(lines []string) ([]Atom, error) {
	if len(lines) < 4 {
		return nil, errors.New("molfile header missing")
	}

	counts := lines[3]
	if strings.Contains(counts, "V3000") {
		return parseV3000(lines[4:])
	}

	n, err := strconv.Atoi(strings.TrimSpace(column(counts, 0, 3)))
	if err != nil {
		return nil, fmt.Errorf("bad molfile counts line %q", counts)
	}
	if len(lines) < 4+n {
		return nil, fmt.Errorf("molfile declares %d atoms but has %d lines", n, len(lines)-4)
	}

	atoms := make([]Atom, 0, n)
	for i := 4; i < 4+n; i++ {
		f := strings.Fields(lines[i])
		if len(f) < 4 {
			return nil, fmt.Errorf("line %d: too few fields", i+1)
		}
		pos, err := parseVec(f[0], f[1], f[2])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		atoms = append(atoms, Atom{Element: normalizeElement(f[3]), Pos: pos})
	}
	return atoms, nil
}

func parseV3000(lines []string) ([]Atom, error) {
	var atoms []Atom
	inAtoms := false
	for _, line := range lines {
		body, ok := strings.CutPrefix(line, "M  V30 ")
		if !ok {
			if strings.HasPrefix(line, "M  END") {
				break
			}
			continue
		}
		switch strings.TrimSpace(body) {
		case "BEGIN ATOM":
			inAtoms = true
			continue
		case "END ATOM":
			return atoms, nil
		}
		if !inAtoms {
			continue
		}

		f := strings.Fields(body)
		if len(f) < 5 {
			return nil, fmt.Errorf("short V3000 atom line %q", line)
		}
		pos, err := parseVec(f[2], f[3], f[4])
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, Atom{Element: normalizeElement(f[1]), Pos: pos})
	}
	return atoms, nil
}

// parseMol2 reads the first @<TRIPOS>ATOM section.
func parseMol2(lines []string) ([]Atom, error) {
	var atoms []Atom
	inAtoms := false
	for i, line := range lines {
		if strings.HasPrefix(line, "@<TRIPOS>") {
			if inAtoms {
				break
			}
			inAtoms = strings.TrimSpace(line) == "@<TRIPOS>ATOM"
			continue
		}
		if !inAtoms || strings.TrimSpace(line) == "" {
			continue
		}

		f := strings.Fields(line)
		if len(f) < 6 {
			return nil, fmt.Errorf("line %d: too few fields", i+1)
		}
		pos, err := parseVec(f[2], f[3], f[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		atoms = append(atoms, Atom{Element: normalizeElement(f[5]), Pos: pos})
	}
	return atoms, nil
}

var atomicSymbols = []string{
	"", "H", "He", "Li", "Be", "B", "C", "N", "O", "F", "Ne",
	"Na", "Mg", "Al", "Si", "P", "S", "Cl", "Ar", "K", "Ca",
	"Sc", "Ti", "V", "Cr", "Mn", "Fe", "Co", "Ni", "Cu", "Zn",
	"Ga", "Ge", "As", "Se", "Br", "Kr",
}

// parseCube reads the atom block of a Gaussian cube file. Coordinates are in
// bohr unless the voxel counts are negative.
func parseCube(lines []string) ([]Atom, error) {
	if len(lines) < 6 {
		return nil, errors.New("cube header missing")
	}

	header := strings.Fields(lines[2])
	if len(header) < 4 {
		return nil, fmt.Errorf("bad cube origin line %q", lines[2])
	}
	n, err := strconv.Atoi(header[0])
	if err != nil {
		return nil, fmt.Errorf("bad cube atom count %q", header[0])
	}
	if n < 0 {
		n = -n // negative count flags extra orbital data after the atoms
	}

	scale := bohr
	if f := strings.Fields(lines[3]); len(f) > 0 && strings.HasPrefix(f[0], "-") {
		scale = 1
	}

	if len(lines) < 6+n {
		return nil, fmt.Errorf("cube declares %d atoms but has %d lines", n, len(lines)-6)
	}

	atoms := make([]Atom, 0, n)
	for i := 6; i < 6+n; i++ {
		f := strings.Fields(lines[i])
		if len(f) < 5 {
			return nil, fmt.Errorf("line %d: too few fields", i+1)
		}
		z, err := strconv.Atoi(f[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad atomic number %q", i+1, f[0])
		}
		pos, err := parseVec(f[2], f[3], f[4])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		for k := range pos {
			pos[k] *= scale
		}

		var el string
		if z > 0 && z < len(atomicSymbols) {
			el = atomicSymbols[z]
		}
		atoms = append(atoms, Atom{Element: el, Pos: pos})
	}
	return atoms, nil
}
