package timeline

import "github.com/edgard/slackarchive/internal/model"

// AddReaction records user under name. It reports whether anything changed;
// a user already present is a no-op.
func AddReaction(rs []model.Reaction, name, user string) ([]model.Reaction, bool) {
	for i := range rs {
		if rs[i].Name != name {
			continue
		}
		for _, u := range rs[i].Users {
			if u == user {
				return rs, false
			}
		}
		out := cloneReactions(rs)
		out[i].Users = append(out[i].Users, user)
		out[i].Count = len(out[i].Users)
		return out, true
	}
	out := cloneReactions(rs)
	return append(out, model.Reaction{Name: name, Users: []string{user}, Count: 1}), true
}

// RemoveReaction takes user out of name, dropping the reaction once no users
// remain. Removing an absent user or an unknown reaction is a no-op.
func RemoveReaction(rs []model.Reaction, name, user string) ([]model.Reaction, bool) {
	for i := range rs {
		if rs[i].Name != name {
			continue
		}
		idx := -1
		for j, u := range rs[i].Users {
			if u == user {
				idx = j
				break
			}
		}
		if idx < 0 {
			return rs, false
		}

		out := cloneReactions(rs)
		users := make([]string, 0, len(out[i].Users)-1)
		users = append(users, out[i].Users[:idx]...)
		users = append(users, out[i].Users[idx+1:]...)
		if len(users) == 0 {
			return append(out[:i], out[i+1:]...), true
		}
		out[i].Users = users
		out[i].Count = len(users)
		return out, true
	}
	return rs, false
}

// NormalizeReactions deduplicates users, fixes count to the user total, and
// drops reactions that end up empty or unnamed. Reactions sharing a name are merged.
func NormalizeReactions(rs []model.Reaction) []model.Reaction {
	var out []model.Reaction
	index := make(map[string]int, len(rs))
	for _, r := range rs {
		if r.Name == "" {
			continue
		}
		i, ok := index[r.Name]
		if !ok {
			i = len(out)
			index[r.Name] = i
			out = append(out, model.Reaction{Name: r.Name})
		}
		for _, u := range r.Users {
			if u == "" || containsUser(out[i].Users, u) {
				continue
			}
			out[i].Users = append(out[i].Users, u)
		}
	}

	kept := out[:0]
	for _, r := range out {
		if len(r.Users) == 0 {
			continue
		}
		r.Count = len(r.Users)
		kept = append(kept, r)
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func containsUser(users []string, user string) bool {
	for _, u := range users {
		if u == user {
			return true
		}
	}
	return false
}

func cloneReactions(rs []model.Reaction) []model.Reaction {
	out := make([]model.Reaction, len(rs), len(rs)+1)
	for i, r := range rs {
		out[i] = model.Reaction{Name: r.Name, Count: r.Count, Users: append([]string(nil), r.Users...)}
	}
	return out
}
