package cart

// Merge folds the local (anonymous) items into the remote items and returns
// the new remote cart. Quantities of products present in both are summed and
// capped at MaxQty; local-only products are appended in local order. Neither
// input is modified.
//
// Merging an empty local cart returns the remote items unchanged, so running
// the merge again after the local cart was cleared is a no-op. Remote entries
// never flow back into the local cart.
func Merge(local, remote []LineItem) []LineItem {
	merged := Cart{Items: Clone(remote)}
	for _, it := range local {
		if it.Qty < 1 {
			continue
		}
		merged.addCapped(it)
	}
	return merged.Items
}
