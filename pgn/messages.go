package pgn

import "github.com/halyard-systems/n2k-node"

// Concrete descriptors for the PGN set this node understands. Each mirrors
// the corresponding CANboat PGN definition closely enough that a capture
// from a real bus decodes the same way; exact resolutions/offsets come
// straight from the CANboat field tables for these PGNs.
func init() {
	DefaultRegistry.Register(isoRequestDescriptor)
	DefaultRegistry.Register(isoAddressClaimDescriptor)
	DefaultRegistry.Register(pgnListDescriptor)
	DefaultRegistry.Register(productInformationDescriptor)
	DefaultRegistry.Register(configurationInformationDescriptor)
	DefaultRegistry.Register(rudderDescriptor)
	DefaultRegistry.Register(engineRapidUpdateDescriptor)
	DefaultRegistry.Register(waterDepthDescriptor)
	DefaultRegistry.Register(positionRapidUpdateDescriptor)
	DefaultRegistry.Register(routeWPInformationDescriptor)

	DefaultEnums = append(DefaultEnums,
		Enum{
			Name: "directionOrder",
			Values: []EnumValue{
				{Name: "No Direction Order", Value: 0},
				{Name: "Port", Value: 1},
				{Name: "Starboard", Value: 2},
			},
		},
		Enum{
			Name: "pgnListFunction",
			Values: []EnumValue{
				{Name: "Transmit", Value: 0},
				{Name: "Receive", Value: 1},
			},
		},
		Enum{
			Name: "engineInstance",
			Values: []EnumValue{
				{Name: "Single Engine or Dual Engine Port", Value: 0},
				{Name: "Dual Engine Starboard", Value: 1},
			},
		},
	)
}

var isoRequestDescriptor = Descriptor{
	PGN:    n2k.PGNISORequest,
	Name:   "ISO Request",
	Type:   ISO,
	Length: 3,
	Fields: []Field{
		{ID: "pgn", Kind: Number, BitLength: 24, BitOffset: 0},
	},
}

var isoAddressClaimDescriptor = Descriptor{
	PGN:    n2k.PGNISOAddressClaim,
	Name:   "ISO Address Claim",
	Type:   ISO,
	Length: 8,
	Fields: []Field{
		{ID: "uniqueNumber", Kind: Number, BitLength: 21, BitOffset: 0},
		{ID: "manufacturerCode", Kind: Number, BitLength: 11, BitOffset: 21},
		{ID: "deviceInstanceLower", Kind: Number, BitLength: 3, BitOffset: 32},
		{ID: "deviceInstanceUpper", Kind: Number, BitLength: 5, BitOffset: 35},
		{ID: "deviceFunction", Kind: Number, BitLength: 8, BitOffset: 40},
		{ID: "reserved", Kind: Reserved, BitLength: 1, BitOffset: 48},
		{ID: "deviceClass", Kind: Number, BitLength: 7, BitOffset: 49},
		{ID: "systemInstance", Kind: Number, BitLength: 4, BitOffset: 56},
		{ID: "industryGroup", Kind: Number, BitLength: 3, BitOffset: 60},
		{ID: "arbitraryAddressCapable", Kind: Number, BitLength: 1, BitOffset: 63},
	},
}

var pgnListDescriptor = Descriptor{
	PGN:    n2k.PGNPGNList,
	Name:   "PGN List",
	Type:   Fast,
	Length: -1,
	Fields: []Field{
		{ID: "functionCode", Kind: Lookup, BitLength: 8, BitOffset: 0, LookupName: "pgnListFunction"},
		{ID: "pgn", Kind: Number, BitLength: 24},
	},
	RepeatStartOrder: 2,
	RepeatCountOrder: 0, // repeats to end of message, no count field
	RepeatSize:       1,
}

var productInformationDescriptor = Descriptor{
	PGN:    n2k.PGNProductInformation,
	Name:   "Product Information",
	Type:   Fast,
	Length: 134,
	Fields: []Field{
		{ID: "nmea2000Version", Kind: Number, BitLength: 16, BitOffset: 0},
		{ID: "productCode", Kind: Number, BitLength: 16, BitOffset: 16},
		{ID: "modelID", Kind: StringFix, BitLength: 32 * 8, BitOffset: 32},
		{ID: "softwareVersionCode", Kind: StringFix, BitLength: 32 * 8, BitOffset: 32 + 32*8},
		{ID: "modelVersion", Kind: StringFix, BitLength: 32 * 8, BitOffset: 32 + 64*8},
		{ID: "modelSerialCode", Kind: StringFix, BitLength: 32 * 8, BitOffset: 32 + 96*8},
		{ID: "certificationLevel", Kind: Number, BitLength: 8, BitOffset: 32 + 128*8},
		{ID: "loadEquivalency", Kind: Number, BitLength: 8, BitOffset: 40 + 128*8},
	},
}

var configurationInformationDescriptor = Descriptor{
	PGN:    n2k.PGNConfigurationInformation,
	Name:   "Configuration Information",
	Type:   Fast,
	Length: -1,
	Fields: []Field{
		{ID: "installationDescription1", Kind: StringLAU},
		{ID: "installationDescription2", Kind: StringLAU},
		{ID: "manufacturerInformation", Kind: StringLAU},
	},
}

const pgnRudder n2k.PGN = 127245

var rudderDescriptor = Descriptor{
	PGN:    pgnRudder,
	Name:   "Rudder",
	Type:   Single,
	Length: 8,
	Fields: []Field{
		{ID: "instance", Kind: Number, BitLength: 8, BitOffset: 0},
		{ID: "directionOrder", Kind: Lookup, BitLength: 3, BitOffset: 8, LookupName: "directionOrder"},
		{ID: "reserved", Kind: Reserved, BitLength: 5, BitOffset: 11},
		{ID: "angleOrder", Kind: Number, BitLength: 16, BitOffset: 16, Signed: true, Resolution: 0.0001},
		{ID: "position", Kind: Number, BitLength: 16, BitOffset: 32, Signed: true, Resolution: 0.0001},
		{ID: "reserved2", Kind: Reserved, BitLength: 16, BitOffset: 48},
	},
}

const pgnEngineRapidUpdate n2k.PGN = 127488

var engineRapidUpdateDescriptor = Descriptor{
	PGN:    pgnEngineRapidUpdate,
	Name:   "Engine Parameters, Rapid Update",
	Type:   Single,
	Length: 8,
	Fields: []Field{
		{ID: "engineInstance", Kind: Lookup, BitLength: 8, BitOffset: 0, LookupName: "engineInstance"},
		{ID: "engineSpeed", Kind: Number, BitLength: 16, BitOffset: 8, Resolution: 0.25},
		{ID: "engineBoostPressure", Kind: Number, BitLength: 16, BitOffset: 24, Resolution: 100},
		{ID: "engineTiltTrim", Kind: Number, BitLength: 8, BitOffset: 40, Signed: true},
		{ID: "reserved", Kind: Reserved, BitLength: 16, BitOffset: 48},
	},
}

const pgnWaterDepth n2k.PGN = 128267

var waterDepthDescriptor = Descriptor{
	PGN:    pgnWaterDepth,
	Name:   "Water Depth",
	Type:   Fast,
	Length: 9,
	Fields: []Field{
		{ID: "sid", Kind: Number, BitLength: 8, BitOffset: 0},
		{ID: "depth", Kind: Number, BitLength: 32, BitOffset: 8, Resolution: 0.01},
		{ID: "offset", Kind: Number, BitLength: 16, BitOffset: 40, Signed: true, Resolution: 0.001},
		{ID: "range", Kind: Number, BitLength: 8, BitOffset: 56, Resolution: 10},
		{ID: "reserved", Kind: Reserved, BitLength: 8, BitOffset: 64},
	},
}

const pgnPositionRapidUpdate n2k.PGN = 129025

var positionRapidUpdateDescriptor = Descriptor{
	PGN:    pgnPositionRapidUpdate,
	Name:   "Position, Rapid Update",
	Type:   Single,
	Length: 8,
	Fields: []Field{
		{ID: "latitude", Kind: Number, BitLength: 32, BitOffset: 0, Signed: true, Resolution: 1e-7},
		{ID: "longitude", Kind: Number, BitLength: 32, BitOffset: 32, Signed: true, Resolution: 1e-7},
	},
}

const pgnRouteWPInformation n2k.PGN = 130074

var routeWPInformationDescriptor = Descriptor{
	PGN:    pgnRouteWPInformation,
	Name:   "Route and WP Service - WP List - WP Name & Position",
	Type:   Fast,
	Length: -1,
	Fields: []Field{
		{ID: "startRPS", Kind: Number, BitLength: 16, BitOffset: 0},
		{ID: "nItems", Kind: Number, BitLength: 8, BitOffset: 16},
		{ID: "databaseID", Kind: Number, BitLength: 16, BitOffset: 24},
		{ID: "wpID", Kind: Number, BitLength: 16},
		{ID: "wpName", Kind: StringLAU},
		{ID: "wpLatitude", Kind: Number, BitLength: 32, Signed: true, Resolution: 1e-7},
		{ID: "wpLongitude", Kind: Number, BitLength: 32, Signed: true, Resolution: 1e-7},
	},
	RepeatStartOrder: 4,
	RepeatCountOrder: 2,
	RepeatSize:       4,
}
