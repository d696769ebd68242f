package schema

import "fmt"

// Integration identifies a source adapter.
type Integration uint8

const (
	IntegrationUnknown Integration = iota
	IntegrationNotion
	IntegrationAirtable
	IntegrationSheets
)

var integrationNames = map[Integration]string{
	IntegrationNotion:   "notion",
	IntegrationAirtable: "airtable",
	IntegrationSheets:   "google-sheets",
}

func (i Integration) String() string {
	if s, ok := integrationNames[i]; ok {
		return s
	}
	return "unknown"
}

// ParseIntegration maps a persisted integration id back to its enum value.
func ParseIntegration(s string) (Integration, error) {
	for k, v := range integrationNames {
		if v == s {
			return k, nil
		}
	}
	return IntegrationUnknown, fmt.Errorf("unknown integration %q", s)
}

func (i Integration) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Integration) UnmarshalText(b []byte) error {
	v, err := ParseIntegration(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

// NativeType is the closed set of source property types across all integrations.
// Wire tags only appear in nativeTags; everything else switches on the enum.
type NativeType uint16

const (
	NativeUnknown NativeType = iota

	NotionTitle
	NotionRichText
	NotionNumber
	NotionCheckbox
	NotionSelect
	NotionStatus
	NotionMultiSelect
	NotionDate
	NotionURL
	NotionEmail
	NotionPhoneNumber
	NotionFiles
	NotionPeople
	NotionRelation
	NotionFormula
	NotionRollup
	NotionUniqueID
	NotionCreatedTime
	NotionLastEditedTime
	NotionCreatedBy
	NotionLastEditedBy
	// synthetic page properties
	NotionPageContent
	NotionPageCover
	NotionPageIcon

	AirtableSingleLineText
	AirtableMultilineText
	AirtableRichText
	AirtableEmail
	AirtableURL
	AirtablePhoneNumber
	AirtableNumber
	AirtableCurrency
	AirtablePercent
	AirtableRating
	AirtableAutoNumber
	AirtableCount
	AirtableDuration
	AirtableCheckbox
	AirtableSingleSelect
	AirtableMultipleSelects
	AirtableDate
	AirtableDateTime
	AirtableCreatedTime
	AirtableLastModifiedTime
	AirtableAttachments
	AirtableRecordLinks
	AirtableCollaborator
	AirtableCollaborators
	AirtableCreatedBy
	AirtableLastModifiedBy
	AirtableBarcode
	AirtableButton
	AirtableFormula
	AirtableRollup
	AirtableLookup
	AirtableAIText
	AirtableExternalSyncSource

	SheetsText
	SheetsNumber
	SheetsBoolean
	SheetsDate
	SheetsURL
	SheetsImage
	SheetsHTML

	nativeTypeCount
)

type nativeTag struct {
	integration Integration
	tag         string
}

var nativeTags = [nativeTypeCount]nativeTag{
	NativeUnknown: {IntegrationUnknown, "unknown"},

	NotionTitle:          {IntegrationNotion, "title"},
	NotionRichText:       {IntegrationNotion, "rich_text"},
	NotionNumber:         {IntegrationNotion, "number"},
	NotionCheckbox:       {IntegrationNotion, "checkbox"},
	NotionSelect:         {IntegrationNotion, "select"},
	NotionStatus:         {IntegrationNotion, "status"},
	NotionMultiSelect:    {IntegrationNotion, "multi_select"},
	NotionDate:           {IntegrationNotion, "date"},
	NotionURL:            {IntegrationNotion, "url"},
	NotionEmail:          {IntegrationNotion, "email"},
	NotionPhoneNumber:    {IntegrationNotion, "phone_number"},
	NotionFiles:          {IntegrationNotion, "files"},
	NotionPeople:         {IntegrationNotion, "people"},
	NotionRelation:       {IntegrationNotion, "relation"},
	NotionFormula:        {IntegrationNotion, "formula"},
	NotionRollup:         {IntegrationNotion, "rollup"},
	NotionUniqueID:       {IntegrationNotion, "unique_id"},
	NotionCreatedTime:    {IntegrationNotion, "created_time"},
	NotionLastEditedTime: {IntegrationNotion, "last_edited_time"},
	NotionCreatedBy:      {IntegrationNotion, "created_by"},
	NotionLastEditedBy:   {IntegrationNotion, "last_edited_by"},
	NotionPageContent:    {IntegrationNotion, "page_content"},
	NotionPageCover:      {IntegrationNotion, "page_cover"},
	NotionPageIcon:       {IntegrationNotion, "page_icon"},

	AirtableSingleLineText:     {IntegrationAirtable, "singleLineText"},
	AirtableMultilineText:      {IntegrationAirtable, "multilineText"},
	AirtableRichText:           {IntegrationAirtable, "richText"},
	AirtableEmail:              {IntegrationAirtable, "email"},
	AirtableURL:                {IntegrationAirtable, "url"},
	AirtablePhoneNumber:        {IntegrationAirtable, "phoneNumber"},
	AirtableNumber:             {IntegrationAirtable, "number"},
	AirtableCurrency:           {IntegrationAirtable, "currency"},
	AirtablePercent:            {IntegrationAirtable, "percent"},
	AirtableRating:             {IntegrationAirtable, "rating"},
	AirtableAutoNumber:         {IntegrationAirtable, "autoNumber"},
	AirtableCount:              {IntegrationAirtable, "count"},
	AirtableDuration:           {IntegrationAirtable, "duration"},
	AirtableCheckbox:           {IntegrationAirtable, "checkbox"},
	AirtableSingleSelect:       {IntegrationAirtable, "singleSelect"},
	AirtableMultipleSelects:    {IntegrationAirtable, "multipleSelects"},
	AirtableDate:               {IntegrationAirtable, "date"},
	AirtableDateTime:           {IntegrationAirtable, "dateTime"},
	AirtableCreatedTime:        {IntegrationAirtable, "createdTime"},
	AirtableLastModifiedTime:   {IntegrationAirtable, "lastModifiedTime"},
	AirtableAttachments:        {IntegrationAirtable, "multipleAttachments"},
	AirtableRecordLinks:        {IntegrationAirtable, "multipleRecordLinks"},
	AirtableCollaborator:       {IntegrationAirtable, "singleCollaborator"},
	AirtableCollaborators:      {IntegrationAirtable, "multipleCollaborators"},
	AirtableCreatedBy:          {IntegrationAirtable, "createdBy"},
	AirtableLastModifiedBy:     {IntegrationAirtable, "lastModifiedBy"},
	AirtableBarcode:            {IntegrationAirtable, "barcode"},
	AirtableButton:             {IntegrationAirtable, "button"},
	AirtableFormula:            {IntegrationAirtable, "formula"},
	AirtableRollup:             {IntegrationAirtable, "rollup"},
	AirtableLookup:             {IntegrationAirtable, "multipleLookupValues"},
	AirtableAIText:             {IntegrationAirtable, "aiText"},
	AirtableExternalSyncSource: {IntegrationAirtable, "externalSyncSource"},

	SheetsText:    {IntegrationSheets, "text"},
	SheetsNumber:  {IntegrationSheets, "number"},
	SheetsBoolean: {IntegrationSheets, "boolean"},
	SheetsDate:    {IntegrationSheets, "date"},
	SheetsURL:     {IntegrationSheets, "url"},
	SheetsImage:   {IntegrationSheets, "image"},
	SheetsHTML:    {IntegrationSheets, "html"},
}

// String returns the integration's wire tag for the type.
func (t NativeType) String() string {
	if t >= nativeTypeCount {
		return "unknown"
	}
	return nativeTags[t].tag
}

// Integration reports which source adapter owns the type.
func (t NativeType) Integration() Integration {
	if t >= nativeTypeCount {
		return IntegrationUnknown
	}
	return nativeTags[t].integration
}

// ParseNativeType resolves a wire tag within one integration. Unknown tags
// yield NativeUnknown, which the registry treats as unsupported.
func ParseNativeType(in Integration, tag string) NativeType {
	for t := NativeType(1); t < nativeTypeCount; t++ {
		if nativeTags[t].integration == in && nativeTags[t].tag == tag {
			return t
		}
	}
	return NativeUnknown
}

// NativeTypes returns every known type of an integration in declaration order.
func NativeTypes(in Integration) []NativeType {
	var out []NativeType
	for t := NativeType(1); t < nativeTypeCount; t++ {
		if nativeTags[t].integration == in {
			out = append(out, t)
		}
	}
	return out
}
