// Package cratetest writes txtar crate fixtures to temporary directories.
package cratetest

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/tools/txtar"
)

// Write extracts a txtar archive into a fresh temporary directory and
// returns its path.
func Write(t testing.TB, archive string) string {
	t.Helper()
	dir := t.TempDir()
	WriteTo(t, dir, archive)
	return dir
}

// WriteTo extracts a txtar archive into dir.
func WriteTo(t testing.TB, dir, archive string) {
	t.Helper()
	ar := txtar.Parse([]byte(archive))
	for _, f := range ar.Files {
		path := filepath.Join(dir, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

// Example is a small crate exercising modules, imports, generics,
// callbacks, traits and cfg gates.
const Example = `-- Cargo.toml --
[package]
name = "example"
-- src/lib.rs --
pub mod model;
pub mod error;
#[cfg(feature = "traits")]
pub mod traits;

use std::sync::Arc;
use model::User;

#[ferment_macro::export]
pub fn users_count(users: Vec<User>) -> u32 { users.len() as u32 }

#[ferment_macro::export]
pub fn shared(user: Arc<User>) -> Arc<User> { user }
-- src/model/mod.rs --
use std::collections::BTreeMap;
use crate::error::ProtocolError;

pub mod nested;

#[ferment_macro::export]
#[derive(Clone)]
pub struct User {
    pub id: u32,
    pub name: String,
    pub tags: BTreeMap<String, Vec<u32>>,
    pub avatar: Option<[u8; 32]>,
    pub status: Result<u32, ProtocolError>,
}

#[ferment_macro::export]
pub type Id = [u8; 32];
-- src/model/nested.rs --
use super::*;

#[ferment_macro::export]
pub struct Group {
    pub owner: User,
    pub members: Vec<User>,
    #[cfg(feature = "extra")]
    pub extra: Vec<u32>,
}
-- src/error.rs --
#[ferment_macro::export]
#[derive(Clone)]
pub enum ProtocolError {
    Decoding(String),
    Unknown { code: u32 },
    Empty,
}
-- src/traits.rs --
use crate::model::User;

#[ferment_macro::export]
pub trait Named {
    fn name(&self) -> String;
}

#[ferment_macro::export]
impl Named for User {
    fn name(&self) -> String { self.name.clone() }
}
-- tests/integration.rs --
#[test]
fn it_works() {}
`
