package campaignsim

import (
	"time"

	"questmap.app/internal/campaign"
)

// SeedDemo loads a small ready-to-play campaign with one DM and three player
// tokens, so a dev run has something on the map immediately. It returns the
// campaign id.
//
// Tokens: tok-gm, tok-aldric, tok-sable, tok-hollis.
func SeedDemo(s *Server) string {
	now := time.Now().UTC()
	c := &Campaign{
		ID:   "greenhollow",
		Name: "The Greenhollow Marches",
		Map: MapDef{
			ID:             "map-greenhollow",
			Name:           "Greenhollow Valley",
			WidthPixels:    4096,
			HeightPixels:   4096,
			MetersPerPixel: 5,
			North:          0,
			South:          -4096,
			East:           4096,
			West:           0,
		},
		TileSets: []TileSetDef{
			{
				ID:          "ts-parchment",
				Name:        "Parchment",
				URLTemplate: "/tiles/parchment/{z}/{x}/{y}.png",
				Attribution: "Greenhollow cartographers guild",
				MinZoom:     0,
				MaxZoom:     6,
				TileSize:    256,
			},
			{
				ID:          "ts-night",
				Name:        "Night overlay",
				URLTemplate: "/tiles/night/{z}/{x}/{y}.png",
				MinZoom:     0,
				MaxZoom:     6,
				TileSize:    256,
			},
		},
		Members: []*Member{
			{
				MembershipID: "mem-gm",
				CharacterID:  "char-morwen",
				UserID:       "u-gm",
				Name:         "Morwen",
				Role:         campaign.RoleDM,
				Status:       "active",
				Visibility:   campaign.VisibilityVisible,
				HitPoints:    42,
				MaxHitPoints: 42,
				ShareTrail:   true,
				Placed:       true,
				X:            220,
				Y:            -180,
				LocatedAt:    now.Add(-2 * time.Minute),
			},
			{
				MembershipID: "mem-aldric",
				CharacterID:  "char-aldric",
				UserID:       "u-aldric",
				Name:         "Aldric",
				Role:         campaign.RolePlayer,
				Status:       "active",
				Visibility:   campaign.VisibilityVisible,
				HitPoints:    27,
				MaxHitPoints: 31,
				Conditions:   []string{"blessed"},
				ShareTrail:   true,
				Placed:       true,
				X:            640,
				Y:            -420,
				LocatedAt:    now.Add(-30 * time.Second),
				Trail: [][2]float64{
					{180, -160}, {320, -240}, {480, -330}, {640, -420},
				},
			},
			{
				MembershipID: "mem-sable",
				CharacterID:  "char-sable",
				UserID:       "u-sable",
				Name:         "Sable",
				Role:         campaign.RolePlayer,
				Status:       "active",
				Visibility:   campaign.VisibilityStealthed,
				HitPoints:    19,
				MaxHitPoints: 22,
				ShareTrail:   false,
				Placed:       true,
				X:            700,
				Y:            -500,
				LocatedAt:    now.Add(-5 * time.Minute),
				Trail: [][2]float64{
					{760, -560}, {700, -500},
				},
			},
			{
				MembershipID: "mem-hollis",
				CharacterID:  "char-hollis",
				UserID:       "u-hollis",
				Name:         "Hollis",
				Role:         campaign.RolePlayer,
				Status:       "active",
				Visibility:   campaign.VisibilityHidden,
				HitPoints:    8,
				MaxHitPoints: 24,
				Conditions:   []string{"exhausted", "poisoned"},
				ShareTrail:   true,
				Placed:       true,
				X:            1900,
				Y:            -2200,
				LocatedAt:    now.Add(-40 * time.Minute),
			},
			{
				// Joined the campaign, never placed a token.
				MembershipID: "mem-odo",
				CharacterID:  "char-odo",
				UserID:       "u-odo",
				Name:         "Brother Odo",
				Role:         campaign.RolePlayer,
				Status:       "invited",
				Visibility:   campaign.VisibilityVisible,
				HitPoints:    16,
				MaxHitPoints: 16,
			},
		},
		Locations: []LocationDef{
			{ID: "loc-gate", Name: "Greenhollow Gate", Kind: "spawn", Spawn: true, X: 200, Y: -200},
			{ID: "loc-mill", Name: "The Broken Mill", Kind: "poi", X: 820, Y: -560},
			{ID: "loc-circle", Name: "Wyrmstone Circle", Kind: "poi", X: 2400, Y: -1800},
		},
	}
	s.AddCampaign(c)
	s.AddToken("tok-gm", "u-gm")
	s.AddToken("tok-aldric", "u-aldric")
	s.AddToken("tok-sable", "u-sable")
	s.AddToken("tok-hollis", "u-hollis")
	return c.ID
}
