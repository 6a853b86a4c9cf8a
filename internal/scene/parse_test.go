package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const crambinFragment = `HEADER    PLANT PROTEIN                           30-APR-81   1CRN
ATOM      1  N   THR A   1      17.047  14.099   3.625  1.00 13.79           N
ATOM      2  CA  THR A   1      16.967  12.784   4.338  1.00 10.80           C
ATOM      3  C   THR A   1      15.685  12.755   5.133  1.00  9.19           C
HETATM    4  O   HOH A 101      10.000  10.000  10.000  1.00 20.00           O
END
`

const waterXYZ = `3
water
O   0.000000   0.000000   0.117300
H   0.000000   0.757200  -0.469200
H   0.000000  -0.757200  -0.469200
`

const methaneSDF = `methane
  RDKit          3D

  5  4  0  0  0  0  0  0  0  0999 V2000
    0.0000    0.0000    0.0000 C   0  0  0  0  0  0  0  0  0  0  0  0
    0.6291    0.6291    0.6291 H   0  0  0  0  0  0  0  0  0  0  0  0
   -0.6291   -0.6291    0.6291 H   0  0  0  0  0  0  0  0  0  0  0  0
   -0.6291    0.6291   -0.6291 H   0  0  0  0  0  0  0  0  0  0  0  0
    0.6291   -0.6291   -0.6291 H   0  0  0  0  0  0  0  0  0  0  0  0
  1  2  1  0
  1  3  1  0
  1  4  1  0
  1  5  1  0
M  END
$$$$
`

const ethaneV3000 = `ethane
     RDKit          3D

  0  0  0     0  0            999 V3000
M  V30 BEGIN CTAB
M  V30 COUNTS 2 1 0 0 0
M  V30 BEGIN ATOM
M  V30 1 C -0.7560 0.0000 0.0000 0
M  V30 2 C 0.7560 0.0000 0.0000 0
M  V30 END ATOM
M  V30 END CTAB
M  END
`

const benzeneMol2 = `@<TRIPOS>MOLECULE
benzene
 2 1 0 0 0
SMALL
NO_CHARGES

@<TRIPOS>ATOM
      1 C1          1.3970    0.0000    0.0000 C.ar    1  BEN1        0.0000
      2 H1          2.4810    0.0000    0.0000 H       1  BEN1        0.0000
@<TRIPOS>BOND
     1     1     2    1
`

const waterCube = `Gaussian cube
density
    2    0.000000    0.000000    0.000000
    2    0.200000    0.000000    0.000000
    2    0.000000    0.200000    0.000000
    2    0.000000    0.000000    0.200000
    8    8.000000    0.000000    0.000000    0.000000
    1    1.000000    1.889726    0.000000    0.000000
  0.1 0.2 0.3 0.4
  0.5 0.6 0.7 0.8
`

const miniCIF = `data_1CRN
#
loop_
_atom_type.symbol
C
N
#
loop_
_atom_site.group_PDB
_atom_site.id
_atom_site.type_symbol
_atom_site.Cartn_x
_atom_site.Cartn_y
_atom_site.Cartn_z
ATOM 1 N 17.047 14.099 3.625
ATOM 2 C 16.967 12.784 4.338
#
_struct.title 'crambin'
`

const pqrRecords = `REMARK   1 PQR file generated by PDB2PQR
ATOM      1  N   THR     1      17.047  14.099   3.625 -0.3000 1.8500
ATOM      2  CA  THR     1      16.967  12.784   4.338  0.1000 1.9000
`

func TestParse(t *testing.T) {
	tests := []struct {
		format   string
		content  string
		atoms    int
		elements map[string]int
	}{
		{"pdb", crambinFragment, 4, map[string]int{"N": 1, "C": 2, "O": 1}},
		{"ent", crambinFragment, 4, map[string]int{"N": 1, "C": 2, "O": 1}},
		{"xyz", waterXYZ, 3, map[string]int{"O": 1, "H": 2}},
		{"sdf", methaneSDF, 5, map[string]int{"C": 1, "H": 4}},
		{"mol", ethaneV3000, 2, map[string]int{"C": 2}},
		{"mol2", benzeneMol2, 2, map[string]int{"C": 1, "H": 1}},
		{"cube", waterCube, 2, map[string]int{"O": 1, "H": 1}},
		{"cif", miniCIF, 2, map[string]int{"N": 1, "C": 1}},
		{"pqr", pqrRecords, 2, map[string]int{"N": 1, "C": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			model, err := Parse([]byte(tt.content), tt.format)
			require.NoError(t, err)
			assert.Len(t, model.Atoms, tt.atoms)
			assert.Equal(t, tt.elements, model.Elements())
		})
	}
}

func TestParseCubeConvertsBohr(t *testing.T) {
	model, err := Parse([]byte(waterCube), "cube")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, model.Atoms[1].Pos[0], 1e-4)
}

func TestParseOpaqueFormats(t *testing.T) {
	for _, format := range []string{"mmtf", "weird", ""} {
		model, err := Parse([]byte{0x8a, 0x01, 0x02}, format)
		require.NoError(t, err)
		assert.True(t, model.Opaque)
		assert.Empty(t, model.Atoms)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	tests := []struct {
		format  string
		content string
	}{
		{"pdb", "just some prose\nwith no records\n"},
		{"pdb", "ATOM      1  N   THR A   1      abc      14.099   3.625\n"},
		{"xyz", "three\nwater\n"},
		{"xyz", "5\ntoo short\nO 0 0 0\n"},
		{"sdf", "x\n"},
		{"mol2", "@<TRIPOS>MOLECULE\nnothing\n"},
		{"cube", "a\nb\nc\n"},
		{"cif", "data_empty\n#\n"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			_, err := Parse([]byte(tt.content), tt.format)
			assert.Error(t, err)
		})
	}
}
