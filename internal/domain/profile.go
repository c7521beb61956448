package domain

import "time"

// UpdatePolicy determines how a ProfileMod handles updates discovered via
// updateAvailable().
type UpdatePolicy int

const (
	UpdateNotify  UpdatePolicy = iota // default: surface as available, require approval
	UpdateAuto                        // updateAll() applies it without asking
	UpdatePinned                      // never considered by updateAvailable()/updateAll()
)

// LinkMethod is how the Activator makes a cached archive visible inside the
// game's Mods folder. Per the design notes, a hard-copy fallback would break
// the "one extracted tree, many profiles" invariant, so only symlink and its
// privilege-constrained junction equivalent are valid here.
type LinkMethod int

const (
	LinkSymlink  LinkMethod = iota // default: directory symlink
	LinkJunction                   // Windows directory junction fallback
)

func (m LinkMethod) String() string {
	if m == LinkJunction {
		return "junction"
	}
	return "symlink"
}

// ParseLinkMethod parses a persisted config string into a LinkMethod,
// defaulting to LinkSymlink for anything unrecognized.
func ParseLinkMethod(s string) LinkMethod {
	if s == "junction" {
		return LinkJunction
	}
	return LinkSymlink
}

// ProfileMod is one mod entry within a Profile's ordered list.
type ProfileMod struct {
	RemoteModID          int64        `json:"remoteModId"`
	DisplayName          string       `json:"displayName"`
	VersionLabel         string       `json:"versionLabel"`
	Fingerprint          Fingerprint  `json:"fingerprint"`
	PreviousFingerprint  Fingerprint  `json:"previousFingerprint,omitempty"`
	ArchiveName          string       `json:"archiveName"`
	InstalledAt          time.Time    `json:"installedAt"`
	Enabled              bool         `json:"enabled"`
	UpdatePolicy         UpdatePolicy `json:"updatePolicy"`

	// Presentation metadata, opaque to the core.
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	Authors      []string  `json:"authors,omitempty"`
	LastUpdated  time.Time `json:"lastUpdated,omitempty"`
}

// Profile is a named, ordered collection of installed mods.
type Profile struct {
	ID        ProfileID    `json:"id"`
	Name      string       `json:"name"`
	Mods      []ProfileMod `json:"mods"`
	CreatedAt time.Time    `json:"createdAt"`
}

// FindMod returns a pointer to the ProfileMod with the given remoteModID, or
// nil if not present. The pointer aliases the Profile's slice; callers that
// mutate it must be holding the store's write lock.
func (p *Profile) FindMod(remoteModID int64) *ProfileMod {
	for i := range p.Mods {
		if p.Mods[i].RemoteModID == remoteModID {
			return &p.Mods[i]
		}
	}
	return nil
}

// EnabledMods returns the subset of Mods with Enabled set, preserving order.
func (p *Profile) EnabledMods() []ProfileMod {
	out := make([]ProfileMod, 0, len(p.Mods))
	for _, m := range p.Mods {
		if m.Enabled {
			out = append(out, m)
		}
	}
	return out
}

// ProfileIndex is the canonical, persisted document holding every Profile
// and which one (if any) is active.
type ProfileIndex struct {
	Version         int                       `json:"version"`
	Profiles        map[ProfileID]*Profile    `json:"profiles"`
	ActiveProfileID ProfileID                 `json:"activeProfileId,omitempty"`
}

// CurrentProfileIndexVersion is the schema tag written by this build.
const CurrentProfileIndexVersion = 1

// NewProfileIndex returns an empty, current-version ProfileIndex.
func NewProfileIndex() *ProfileIndex {
	return &ProfileIndex{
		Version:  CurrentProfileIndexVersion,
		Profiles: make(map[ProfileID]*Profile),
	}
}
