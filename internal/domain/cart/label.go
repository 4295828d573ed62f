package cart

// ProductLabel returns the storefront name of a product kind.
func ProductLabel(kind ProductKind) string {
	switch kind {
	case ProfessionsDeFoi:
		return "Professions de foi"
	case BulletinsDeVote:
		return "Bulletins de vote"
	case Affiches:
		return "Affiches"
	default:
		return string(kind)
	}
}

func impressionLabel(i Impression) string {
	if i == Recto {
		return "Recto"
	}
	return "Recto-verso"
}

func bulletinFormatLabel(f BulletinFormat) string {
	if f == Liste5to31 {
		return "Liste 5–31"
	}
	return "Liste 32+"
}

func afficheFormatLabel(f AfficheFormat) string {
	if f == GrandFormat {
		return "Grand format 594×841"
	}
	return "Petit format 297×420"
}

// Label returns the line label shown to payers, e.g.
// "Bulletins de vote - Liste 5–31 - Recto-verso".
func Label(item Item) string {
	switch it := item.(type) {
	case ProfessionsDeFoiItem:
		return ProductLabel(ProfessionsDeFoi) + " - " + impressionLabel(it.Impression)
	case BulletinsDeVoteItem:
		return ProductLabel(BulletinsDeVote) + " - " + bulletinFormatLabel(it.BulletinFormat) + " - " + impressionLabel(it.Impression)
	case AffichesItem:
		return ProductLabel(Affiches) + " - " + afficheFormatLabel(it.AfficheFormat)
	default:
		return ProductLabel(item.Kind())
	}
}
