package seed

import (
	"fmt"

	"estatehub/pkg/domain"
)

// Marketplace returns the entity types of the marketplace snapshot in load
// order. The order is validated by NewPlan before any store access.
func Marketplace() []EntityType {
	return []EntityType{
		{
			Name:  domain.EntityTier,
			Table: domain.TableTiers,
			Keys:  domain.KeySequence,
			Fields: []Field{
				{Name: "name", Kind: FieldString, Required: true},
				{Name: "priceCents", Kind: FieldInt},
				{Name: "maxListings", Kind: FieldInt},
			},
			SourceKeys: []KeyShape{KeyOf("name")},
		},
		{
			Name:  domain.EntityRegion,
			Table: domain.TableRegions,
			Keys:  domain.KeySequence,
			Fields: []Field{
				{Name: "code", Kind: FieldID, Required: true},
				{Name: "name", Kind: FieldString, Required: true},
			},
			SourceKeys: []KeyShape{KeyOf("code")},
		},
		{
			Name:  domain.EntitySubRegion,
			Table: domain.TableSubRegions,
			Keys:  domain.KeySequence,
			Fields: []Field{
				{Name: "code", Kind: FieldID, Required: true},
				{Name: "name", Kind: FieldString, Required: true},
			},
			References: []Reference{
				{Field: "regionCode", Derive: regionPrefix, Column: "regionId", Target: domain.EntityRegion, Required: true, Numeric: true},
			},
			SourceKeys: []KeyShape{KeyOf("code")},
		},
		{
			Name:  domain.EntityAccount,
			Table: domain.TableAccounts,
			Keys:  domain.KeyOpaque,
			Fields: []Field{
				{Name: "email", Kind: FieldString, Required: true},
				{Name: "name", Kind: FieldString},
				{Name: "role", Kind: FieldString},
				{Name: "createdAt", Kind: FieldTime},
			},
			References: []Reference{
				{Field: "tierName", Column: "tierId", Target: domain.EntityTier},
			},
			SourceKeys: []KeyShape{KeyOf("id"), KeyOf("email")},
		},
		{
			Name:  domain.EntityListing,
			Table: domain.TableListings,
			Keys:  domain.KeySequence,
			Fields: []Field{
				{Name: "id", Column: "externalId", Kind: FieldID},
				{Name: "slug", Kind: FieldString, Required: true},
				{Name: "title", Kind: FieldString, Required: true},
				{Name: "description", Kind: FieldString},
				{Name: "listingType", Kind: FieldString},
				{Name: "priceCents", Kind: FieldInt},
				{Name: "currency", Kind: FieldString},
				{Name: "bedrooms", Kind: FieldInt},
				{Name: "bathrooms", Kind: FieldInt},
				{Name: "areaSqm", Kind: FieldFloat},
				{Name: "latitude", Kind: FieldFloat},
				{Name: "longitude", Kind: FieldFloat},
				{Name: "showExactLocation", Kind: FieldBool},
				{Name: "publicLatitude", Kind: FieldFloat},
				{Name: "publicLongitude", Kind: FieldFloat},
				{Name: "createdAt", Kind: FieldTime},
			},
			References: []Reference{
				{Field: "ownerEmail", Column: "ownerId", Target: domain.EntityAccount, Required: true},
				{Field: "subRegionCode", Column: "subRegionId", Target: domain.EntitySubRegion, Required: true, Numeric: true},
			},
			SourceKeys: []KeyShape{KeyOf("id"), KeyOf("slug")},
			Shape:      shapeListingLocation,
		},
		{
			Name:  domain.EntityListingMedia,
			Table: domain.TableListingMedia,
			Keys:  domain.KeySequence,
			Fields: []Field{
				{Name: "position", Kind: FieldInt},
			},
			References: []Reference{
				{Field: "listingSlug", Fallbacks: []string{"listingId"}, Column: "listingId", Target: domain.EntityListing, Required: true, Numeric: true},
			},
			SourceKeys: []KeyShape{KeyOf("id")},
			Shape:      shapeMediaPayload,
		},
		{
			Name:  domain.EntityConversation,
			Table: domain.TableConversations,
			Keys:  domain.KeyOpaque,
			Fields: []Field{
				{Name: "createdAt", Kind: FieldTime},
			},
			References: []Reference{
				{Field: "listingSlug", Column: "listingId", Target: domain.EntityListing, Required: true},
				{Field: "buyerEmail", Column: "buyerId", Target: domain.EntityAccount, Required: true},
				{Field: "sellerEmail", Column: "sellerId", Target: domain.EntityAccount, Required: true},
			},
			SourceKeys: []KeyShape{KeyOf("id")},
		},
		{
			Name:  domain.EntityMessage,
			Table: domain.TableMessages,
			Keys:  domain.KeyOpaque,
			Fields: []Field{
				{Name: "body", Kind: FieldString, Required: true},
				{Name: "sentAt", Kind: FieldTime},
				{Name: "readAt", Kind: FieldTime},
			},
			References: []Reference{
				{Field: "conversationId", Column: "conversationId", Target: domain.EntityConversation, Required: true, Numeric: true},
				{Field: "senderEmail", Column: "senderId", Target: domain.EntityAccount, Required: true},
			},
			SourceKeys: []KeyShape{KeyOf("id")},
		},
		{
			Name:  domain.EntityFavorite,
			Table: domain.TableFavorites,
			Keys:  domain.KeySequence,
			Fields: []Field{
				{Name: "createdAt", Kind: FieldTime},
			},
			References: []Reference{
				{Field: "accountEmail", Column: "accountId", Target: domain.EntityAccount, Required: true},
				// Listings register string slugs only; legacy numeric ids are rejected.
				{Field: "propertyId", Column: "propertyId", Target: domain.EntityListing, Required: true},
			},
			SourceKeys: []KeyShape{KeyOf("accountEmail", "propertyId")},
		},
	}
}

// regionCodeLen is the length of the region prefix embedded in sub-region codes.
const regionCodeLen = 2

// regionPrefix derives a sub-region's parent code from its own code, e.g.
// "1601" -> "16".
func regionPrefix(raw domain.RawRecord) (string, bool) {
	code, ok, err := keyString(raw["code"], true)
	if err != nil || !ok || len(code) <= regionCodeLen {
		return "", false
	}
	return code[:regionCodeLen], true
}

// shapeListingLocation derives the public coordinates from the exact ones
// and the opt-in flag, overriding any public coordinates in the snapshot:
// an exact copy when the owner opted in, a bounded offset otherwise. Without
// exact coordinates no public ones are written.
func shapeListingLocation(rec *domain.Record, _ domain.RawRecord, tr *Transformer) error {
	show, _ := rec.Get("showExactLocation")
	exactOptIn, _ := show.(bool)
	rec.Set("showExactLocation", exactOptIn)
	rec.Unset("publicLatitude")
	rec.Unset("publicLongitude")

	lat, hasLat := rec.Get("latitude")
	lng, hasLng := rec.Get("longitude")
	if hasLat != hasLng {
		return malformedf("%s: latitude and longitude must be given together", domain.EntityListing)
	}
	if !hasLat {
		return nil
	}
	exact := domain.Coordinates{Lat: lat.(float64), Lng: lng.(float64)}
	if exact.Lat < -90 || exact.Lat > 90 || exact.Lng < -180 || exact.Lng > 180 {
		return malformedf("%s: coordinates %v out of range", domain.EntityListing, exact)
	}
	public := exact
	if !exactOptIn {
		public = tr.Obfuscate(exact)
	}
	rec.Set("publicLatitude", public.Lat)
	rec.Set("publicLongitude", public.Lng)
	return nil
}

// shapeMediaPayload folds the flat media fields of the selected kind into a
// single payload column. Fields of the other kind are never read.
func shapeMediaPayload(rec *domain.Record, raw domain.RawRecord, _ *Transformer) error {
	kind, err := stringValue(raw["type"])
	if err != nil {
		return malformed(err, "ListingMedia discriminator \"type\"")
	}
	var payload domain.MediaPayload
	switch domain.MediaKind(kind) {
	case domain.MediaImage:
		payload, err = imagePayload(raw)
	case domain.MediaVideo:
		payload, err = videoPayload(raw)
	default:
		return malformedf("%s: unknown media type %q", domain.EntityListingMedia, kind)
	}
	if err != nil {
		return malformed(err, fmt.Sprintf("%s %s payload", domain.EntityListingMedia, kind))
	}
	rec.Set("type", kind)
	rec.Set(payload.Column(), payload)
	return nil
}

func imagePayload(raw domain.RawRecord) (domain.ImagePayload, error) {
	var p domain.ImagePayload
	var err error
	if p.URL, err = requiredString(raw, "url"); err != nil {
		return p, err
	}
	if p.Width, err = optionalInt(raw, "width"); err != nil {
		return p, err
	}
	if p.Height, err = optionalInt(raw, "height"); err != nil {
		return p, err
	}
	if p.Blurhash, err = optionalString(raw, "blurhash"); err != nil {
		return p, err
	}
	p.Alt, err = optionalString(raw, "alt")
	return p, err
}

func videoPayload(raw domain.RawRecord) (domain.VideoPayload, error) {
	var p domain.VideoPayload
	var err error
	if p.Platform, err = requiredString(raw, "platform"); err != nil {
		return p, err
	}
	if p.URL, err = requiredString(raw, "url"); err != nil {
		return p, err
	}
	if p.Duration, err = optionalInt(raw, "duration"); err != nil {
		return p, err
	}
	p.ThumbnailURL, err = optionalString(raw, "thumbnailUrl")
	return p, err
}

func requiredString(raw domain.RawRecord, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required field %q", field)
	}
	s, err := stringValue(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", field, err)
	}
	return s, nil
}

func optionalString(raw domain.RawRecord, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", nil
	}
	s, err := stringValue(v)
	if err != nil {
		return "", fmt.Errorf("field %q: %w", field, err)
	}
	return s, nil
}

func optionalInt(raw domain.RawRecord, field string) (int64, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return 0, nil
	}
	n, err := intValue(v)
	if err != nil {
		return 0, fmt.Errorf("field %q: %w", field, err)
	}
	return n, nil
}
