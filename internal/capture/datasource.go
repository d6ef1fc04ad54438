package capture

import "strconv"

// DataSourceID 是码制标识，取值范围 [DataSourceIDNotSpecified, DataSourceIDLast)。
type DataSourceID int

const (
	DataSourceIDNotSpecified DataSourceID = iota
	DataSourceIDAustraliaPost
	DataSourceIDAztec
	DataSourceIDBooklandEan
	DataSourceIDBritishPost
	DataSourceIDCanadaPost
	DataSourceIDChinese2of5
	DataSourceIDCodabar
	DataSourceIDCodablockA
	DataSourceIDCodablockF
	DataSourceIDCode11
	DataSourceIDCode39
	DataSourceIDCode39Extended
	DataSourceIDCode39Trioptic
	DataSourceIDCode93
	DataSourceIDCode128
	DataSourceIDDataMatrix
	DataSourceIDDutchPost
	DataSourceIDEan8
	DataSourceIDEan13
	DataSourceIDEan128
	DataSourceIDEan128Irregular
	DataSourceIDEanUccCompositeAB
	DataSourceIDEanUccCompositeC
	DataSourceIDGs1Databar
	DataSourceIDGs1DatabarLimited
	DataSourceIDGs1DatabarExpanded
	DataSourceIDInterleaved2of5
	DataSourceIDIsbt128
	DataSourceIDJapanPost
	DataSourceIDMatrix2of5
	DataSourceIDMaxicode
	DataSourceIDMsi
	DataSourceIDPdf417
	DataSourceIDPdf417Micro
	DataSourceIDPlanet
	DataSourceIDPlessey
	DataSourceIDPostnet
	DataSourceIDQRCode
	DataSourceIDStandard2of5
	DataSourceIDTelepen
	DataSourceIDTlc39
	DataSourceIDUpcA
	DataSourceIDUpcE0
	DataSourceIDUpcE1
	DataSourceIDUspsIntelligentMail
	DataSourceIDDirectPartMarking
	DataSourceIDHanXin
	DataSourceIDDotCode
	DataSourceIDLastSymbologyID
)

// Valid 判断码制标识是否为已知值。
func (id DataSourceID) Valid() bool {
	return id >= DataSourceIDNotSpecified && id < DataSourceIDLastSymbologyID
}

func itoa(v int) string {
	return strconv.Itoa(v)
}
