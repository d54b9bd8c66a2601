// Package likes turns a page of liked posts into named download candidates.
//
// Join attaches authors from an AuthorCache (one batched lookup per page for
// uncached authors) and media from the page's media index. Synthesize then
// names each downloadable asset:
//
//	{date}.{display name}.@{username}.{post id}.{media index}.{ext}
//
// e.g. 2022-10-27.ねばえばぎぶあぷ.@N_ever2_give_up.1585497795418820609.0.jpg
//
// The post id and media index make every name unique, so a name that
// already exists in storage means the asset was already downloaded.
package likes
