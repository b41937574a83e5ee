package pgn

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-systems/n2k-node"
)

const sampleManifest = `{
	"PGNs": [
		{
			"PGN": 127250,
			"Id": "vesselHeading",
			"Type": "Single",
			"Length": 8,
			"Fields": [
				{"Id": "sid", "FieldType": "NUMBER", "BitLength": 8, "BitOffset": 0},
				{"Id": "heading", "FieldType": "NUMBER", "BitLength": 16, "BitOffset": 8, "Resolution": 0.0001},
				{"Id": "reference", "FieldType": "LOOKUP", "BitLength": 2, "BitOffset": 60, "LookupEnumeration": "directionReference"}
			]
		}
	],
	"LookupEnumerations": [
		{
			"Name": "directionReference",
			"EnumValues": [
				{"Name": "True", "Value": 0},
				{"Name": "Magnetic", "Value": 1}
			]
		}
	]
}`

func TestLoadManifest_RegistersDescriptorsAndEnums(t *testing.T) {
	fsys := fstest.MapFS{
		"manifest.json": &fstest.MapFile{Data: []byte(sampleManifest)},
	}
	registry := NewRegistry()
	savedEnums := DefaultEnums
	DefaultEnums = nil
	defer func() { DefaultEnums = savedEnums }()

	n, err := LoadManifest(fsys, "manifest.json", registry)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	descriptors, ok := registry.Lookup(n2k.PGN(127250))
	require.True(t, ok)
	require.Len(t, descriptors, 1)
	assert.Equal(t, "vesselHeading", descriptors[0].Name)
	assert.Equal(t, Single, descriptors[0].Type)
	assert.Len(t, descriptors[0].Fields, 3)

	value, err := DefaultEnums.FindValue("directionReference", 1)
	require.NoError(t, err)
	assert.Equal(t, "Magnetic", value.Name)
}

func TestLoadManifest_DecodesAgainstRegisteredDescriptor(t *testing.T) {
	fsys := fstest.MapFS{
		"manifest.json": &fstest.MapFile{Data: []byte(sampleManifest)},
	}
	registry := NewRegistry()
	_, err := LoadManifest(fsys, "manifest.json", registry)
	require.NoError(t, err)

	raw := n2k.RawMessage{
		Header: n2k.CanBusHeader{PGN: 127250},
		Data:   []byte{7, 0x10, 0x27, 0, 0, 0, 0, 0},
	}
	msg, err := registry.Decode(raw)
	require.NoError(t, err)

	sid, ok := msg.FindField("sid")
	require.True(t, ok)
	assert.Equal(t, uint64(7), sid.Uint)
}

func TestLoadManifest_UnknownPacketType(t *testing.T) {
	fsys := fstest.MapFS{
		"manifest.json": &fstest.MapFile{Data: []byte(`{"PGNs":[{"PGN":1,"Id":"bad","Type":"Weird","Fields":[]}]}`)},
	}
	_, err := LoadManifest(fsys, "manifest.json", NewRegistry())
	assert.Error(t, err)
}
